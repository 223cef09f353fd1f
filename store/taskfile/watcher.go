// Package taskfile watches a directory for externally-dropped evidence
// files and republishes their contents onto an eventbus.Bus, so an
// out-of-process guard checker or test runner can hand off evidence by
// writing a JSON file instead of calling an API.
//
// A dropped file's name must start with "guard-" or "test-", e.g.
// "guard-task-123.json" or "test-task-123.json"; the remainder (minus the
// extension) is taken as the task id.
package taskfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/ccguard/eventbus"
	"github.com/dshills/ccguard/gates"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher watches a directory for guard/test evidence file drops.
type Watcher struct {
	dir      string
	bus      *eventbus.Bus
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]struct{}

	dropped int64
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait after the last change before a file is
	// read and republished. Zero uses a 100ms default.
	Debounce time.Duration
	Logger   *slog.Logger
}

// New creates a Watcher over dir, publishing parsed evidence to bus.
// The directory is created if it doesn't already exist.
func New(dir string, bus *eventbus.Bus, opts Options) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("taskfile: creating %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("taskfile: creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("taskfile: watching %s: %w", dir, err)
	}

	debounce := opts.Debounce
	if debounce == 0 {
		debounce = defaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dir:      dir,
		bus:      bus,
		logger:   logger,
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start runs the watch loop until stop is closed.
func (w *Watcher) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("taskfile watcher error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// DroppedEvents reports how many dropped evidence files failed to ingest
// (unrecognized name, read error, or decode error).
func (w *Watcher) DroppedEvents() int64 {
	return w.dropped
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(event.Name)
	if !strings.HasPrefix(base, "guard-") && !strings.HasPrefix(base, "test-") {
		return
	}
	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := make([]string, 0, len(w.pending))
	for path := range w.pending {
		toProcess = append(toProcess, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		if err := w.ingest(path); err != nil {
			w.logger.Warn("taskfile: failed to ingest dropped evidence", "path", path, "error", err)
			w.dropped++
		}
	}
}

// ingest parses a single dropped file and emits the matching evidence event.
func (w *Watcher) ingest(path string) error {
	taskID, kind, err := parseName(filepath.Base(path))
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch kind {
	case "guard":
		var ev gates.GuardEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decoding guard evidence in %s: %w", path, err)
		}
		w.bus.Emit(eventbus.Event{
			Type:   eventbus.EventGuardEvidence,
			Source: "taskfile-watcher",
			Data: map[string]any{
				"taskId":   taskID,
				"evidence": ev,
			},
		})
	case "test":
		var ev gates.TestEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decoding test evidence in %s: %w", path, err)
		}
		w.bus.Emit(eventbus.Event{
			Type:   eventbus.EventTestEvidence,
			Source: "taskfile-watcher",
			Data: map[string]any{
				"taskId":   taskID,
				"evidence": ev,
			},
		})
	}
	return nil
}

// parseName splits "guard-<taskID>.json" / "test-<taskID>.json" into its
// task id and evidence kind.
func parseName(base string) (taskID, kind string, err error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	switch {
	case strings.HasPrefix(stem, "guard-"):
		kind = "guard"
		taskID = strings.TrimPrefix(stem, "guard-")
	case strings.HasPrefix(stem, "test-"):
		kind = "test"
		taskID = strings.TrimPrefix(stem, "test-")
	default:
		return "", "", fmt.Errorf("unrecognized evidence filename %q", base)
	}
	if taskID == "" {
		return "", "", fmt.Errorf("missing task id in filename %q", base)
	}
	return taskID, kind, nil
}
