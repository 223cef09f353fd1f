package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/ccguard/eventbus"
	"github.com/dshills/ccguard/gates"
	"github.com/google/uuid"
)

// StateManager supplies evidence for gate evaluation on completion. The
// Service does not append timeline entries to it; gate timeline events are
// emitted on the bus, where a state manager may subscribe to them.
type StateManager interface {
	GetEvidenceState(taskID string) (gates.EvidenceState, error)
}

// Config carries the Workflow Service's recognized configuration options.
type Config struct {
	Enabled                bool
	AutoCleanupEnabled     bool
	CompletedRetentionDays int
	MaxCompletedTasks      int
	GatesEnabled           bool
}

// DefaultConfig returns the recommended defaults. NewService applies no
// defaults of its own: it uses the Config it is given.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		AutoCleanupEnabled:     true,
		CompletedRetentionDays: 7,
		MaxCompletedTasks:      200,
		GatesEnabled:           true,
	}
}

// CompletionResult is returned by CompleteTask.
type CompletionResult struct {
	Status  string                      `json:"status"` // completed | pending | blocked
	Task    *Task                       `json:"task,omitempty"`
	Gate    *gates.GateEvaluationResult `json:"gate,omitempty"`
	Message string                      `json:"message,omitempty"`
}

// Service is the Workflow Service: task CRUD, persistence, gate invocation
// on completion, and resume-on-startup. A Service instance owns exactly one
// project-scoped tasks directory.
type Service struct {
	mu sync.Mutex

	tasks     map[string]*Task
	currentID string

	store      *taskStore
	bus        *eventbus.Bus
	gates      *gates.Engine
	stateMgr   StateManager
	config     Config
}

// NewService constructs a Service rooted at dir and loads any persisted
// tasks, electing the most recently updated in-progress task as current and
// demoting the rest to paused (see the resume-on-startup rule).
func NewService(dir string, bus *eventbus.Bus, gateEngine *gates.Engine, stateMgr StateManager, config Config) (*Service, error) {
	store, err := newTaskStore(dir)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		tasks:    make(map[string]*Task),
		store:    store,
		bus:      bus,
		gates:    gateEngine,
		stateMgr: stateMgr,
		config:   config,
	}

	if err := svc.initialize(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) initialize() error {
	loaded, err := s.store.loadAll()
	if err != nil {
		return err
	}

	var inProgress []*Task
	for _, t := range loaded {
		s.tasks[t.ID] = t
		if t.Status == StatusInProgress {
			inProgress = append(inProgress, t)
		}
	}

	if len(inProgress) == 0 {
		return nil
	}

	sort.Slice(inProgress, func(i, j int) bool { return inProgress[i].UpdatedAt.After(inProgress[j].UpdatedAt) })
	s.currentID = inProgress[0].ID
	for _, t := range inProgress[1:] {
		t.Status = StatusPaused
		t.UpdatedAt = time.Now()
		_ = s.store.save(t)
	}
	return nil
}

func (s *Service) emit(eventType eventbus.EventType, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(eventbus.Event{Type: eventType, Data: data, Source: "workflow-service"})
}

// CreateTask creates a pending task. If ParentID is set, the new task's id
// is appended to the parent's Subtasks.
func (s *Service) CreateTask(params CreateParams) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	task := &Task{
		ID:              uuid.New().String(),
		Name:            params.Name,
		Description:     params.Description,
		Status:          StatusPending,
		Progress:        0,
		Priority:        priority,
		CreatedAt:       now,
		UpdatedAt:       now,
		ParentID:        params.ParentID,
		Tags:            params.Tags,
		EstimatedTokens: params.EstimatedTokens,
	}

	if params.ParentID != "" {
		parent, ok := s.tasks[params.ParentID]
		if ok {
			parent.Subtasks = append(parent.Subtasks, task.ID)
			parent.UpdatedAt = now
			if err := s.store.save(parent); err != nil {
				return nil, err
			}
		}
	}

	s.tasks[task.ID] = task
	if err := s.store.save(task); err != nil {
		return nil, err
	}

	s.emit(eventbus.EventTaskCreate, map[string]any{"taskId": task.ID, "name": task.Name})
	return task, nil
}

// StartTask promotes id to in_progress, pausing any existing in-progress
// task first to preserve the at-most-one-current-task invariant.
func (s *Service) StartTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("workflow: task %q not found", id)
	}

	if s.currentID != "" && s.currentID != id {
		if current, ok := s.tasks[s.currentID]; ok && current.Status == StatusInProgress {
			current.Status = StatusPaused
			current.UpdatedAt = time.Now()
			if err := s.store.save(current); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now()
	task.Status = StatusInProgress
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	task.UpdatedAt = now
	s.currentID = id

	if err := s.store.save(task); err != nil {
		return nil, err
	}
	s.emit(eventbus.EventTaskStart, map[string]any{"taskId": id})
	return task, nil
}

// UpdateTask applies a partial patch, clamping Progress into [0,100]. It
// returns (nil, false) for an unknown id rather than an error.
func (s *Service) UpdateTask(id string, patch UpdatePatch) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}

	if patch.Name != nil {
		task.Name = *patch.Name
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Progress != nil {
		progress := clampProgress(*patch.Progress)
		if progress == 100 && task.Status != StatusCompleted {
			// Reaching 100 only happens through CompleteTask, which also
			// sets CompletedAt; clamp just shy of it here so the
			// status=completed ⇔ progress=100 ∧ completedAt≠nil invariant
			// never breaks via a plain progress patch.
			progress = 99
		}
		task.Progress = progress
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		task.Tags = patch.Tags
	}
	if patch.ActualTokens != nil {
		task.ActualTokens = patch.ActualTokens
	}
	task.UpdatedAt = time.Now()

	_ = s.store.save(task)
	s.emit(eventbus.EventTaskProgress, map[string]any{"taskId": id, "progress": task.Progress})
	return task, true
}

// PauseTask sets status to paused.
func (s *Service) PauseTask(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	task.Status = StatusPaused
	task.UpdatedAt = time.Now()
	if s.currentID == id {
		s.currentID = ""
	}
	_ = s.store.save(task)
	return task, true
}

// FailTask sets status to failed, optionally recording reason as a note.
func (s *Service) FailTask(id string, reason string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	task.Status = StatusFailed
	task.UpdatedAt = time.Now()
	if reason != "" {
		task.Notes = append(task.Notes, Note{Content: reason, Type: "failure", Timestamp: time.Now()})
	}
	if s.currentID == id {
		s.currentID = ""
	}
	_ = s.store.save(task)
	s.emit(eventbus.EventTaskFail, map[string]any{"taskId": id, "reason": reason})
	return task, true
}

// CompleteTask runs the completion protocol in spec §4.3: resolve the task,
// fall back to unconditional completion when gates are disabled or no state
// manager is wired, otherwise evaluate gates and act on the outcome.
func (s *Service) CompleteTask(id string, actualTokens *int64) (CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return CompletionResult{Status: "blocked", Message: "not found"}, nil
	}

	if s.stateMgr == nil || !s.config.GatesEnabled {
		s.markCompletedLocked(task, actualTokens)
		return CompletionResult{Status: "completed", Task: task}, nil
	}

	evidence, err := s.stateMgr.GetEvidenceState(id)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("workflow: fetching evidence for %q: %w", id, err)
	}

	gateResult := s.gates.EvaluateCompletionGates(evidence, gates.Context{
		TaskID:   task.ID,
		TaskName: task.Name,
		Tags:     task.Tags,
	})

	switch gateResult.Status {
	case gates.GateStatusPassed:
		s.markCompletedLocked(task, actualTokens)
		s.emit(eventbus.EventWorkflowGatePassed, map[string]any{"taskId": id, "taskName": task.Name})
		return CompletionResult{Status: "completed", Task: task, Gate: &gateResult}, nil

	case gates.GateStatusPending:
		s.emit(eventbus.EventWorkflowGatePending, map[string]any{
			"taskId": id, "taskName": task.Name,
			"gateStatus": gateResult.Status, "missingEvidence": gateResult.MissingEvidence,
		})
		return CompletionResult{Status: "pending", Task: task, Gate: &gateResult}, nil

	default: // blocked
		task.Status = StatusBlocked
		task.UpdatedAt = time.Now()
		_ = s.store.save(task)

		summarized := make([]map[string]string, 0, len(gateResult.FailingEvidence))
		for _, f := range gateResult.FailingEvidence {
			summarized = append(summarized, map[string]string{"type": f.Type, "reason": f.Reason})
		}
		s.emit(eventbus.EventWorkflowGateBlocked, map[string]any{
			"taskId": id, "taskName": task.Name,
			"gateStatus": gateResult.Status, "failingEvidence": summarized,
		})
		return CompletionResult{Status: "blocked", Task: task, Gate: &gateResult}, nil
	}
}

// EvaluateGate runs the same gate evaluation CompleteTask would, without
// mutating the task or its status. Useful for inspecting whether a task
// would pass before attempting completion.
func (s *Service) EvaluateGate(id string) (gates.GateEvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return gates.GateEvaluationResult{}, fmt.Errorf("workflow: task %q not found", id)
	}

	if s.stateMgr == nil || !s.config.GatesEnabled {
		return gates.GateEvaluationResult{Status: gates.GateStatusPassed}, nil
	}

	evidence, err := s.stateMgr.GetEvidenceState(id)
	if err != nil {
		return gates.GateEvaluationResult{}, fmt.Errorf("workflow: fetching evidence for %q: %w", id, err)
	}

	return s.gates.EvaluateCompletionGates(evidence, gates.Context{
		TaskID:   task.ID,
		TaskName: task.Name,
		Tags:     task.Tags,
	}), nil
}

// ForceCompleteTask marks a task completed without consulting gates.
func (s *Service) ForceCompleteTask(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	s.markCompletedLocked(task, nil)
	return task, true
}

// markCompletedLocked must be called with s.mu held.
func (s *Service) markCompletedLocked(task *Task, actualTokens *int64) {
	now := time.Now()
	task.Status = StatusCompleted
	task.Progress = 100
	task.CompletedAt = &now
	task.UpdatedAt = now
	if actualTokens != nil {
		task.ActualTokens = actualTokens
	}
	if s.currentID == task.ID {
		s.currentID = ""
	}
	_ = s.store.save(task)
	s.emit(eventbus.EventTaskComplete, map[string]any{"taskId": task.ID})
}

// AddNote appends a note to a task.
func (s *Service) AddNote(id, content, noteType string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	task.Notes = append(task.Notes, Note{Content: content, Type: noteType, Timestamp: time.Now()})
	task.UpdatedAt = time.Now()
	_ = s.store.save(task)
	return task, true
}

// AddAffectedFile records a file path touched while working on a task.
func (s *Service) AddAffectedFile(id, path string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	task.FilesAffected = append(task.FilesAffected, path)
	task.UpdatedAt = time.Now()
	_ = s.store.save(task)
	return task, true
}

// AddCheckpoint records an opaque checkpoint id against a task.
func (s *Service) AddCheckpoint(id, checkpointID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	task.Checkpoints = append(task.Checkpoints, checkpointID)
	task.UpdatedAt = time.Now()
	_ = s.store.save(task)
	return task, true
}

// DeleteTask removes a task, detaching it from any parent's Subtasks list
// and refusing to leave dangling parentId references on surviving
// children: their ParentID is cleared.
func (s *Service) DeleteTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}

	if task.ParentID != "" {
		if parent, ok := s.tasks[task.ParentID]; ok {
			parent.Subtasks = removeID(parent.Subtasks, id)
			parent.UpdatedAt = time.Now()
			_ = s.store.save(parent)
		}
	}

	for _, childID := range task.Subtasks {
		if child, ok := s.tasks[childID]; ok {
			child.ParentID = ""
			child.UpdatedAt = time.Now()
			_ = s.store.save(child)
		}
	}

	delete(s.tasks, id)
	_ = s.store.delete(id)
	if s.currentID == id {
		s.currentID = ""
	}
	return true
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// GetTask returns a task by id.
func (s *Service) GetTask(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return task, ok
}

// GetCurrentTask returns the single in-progress task, if any.
func (s *Service) GetCurrentTask() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		return nil, false
	}
	task, ok := s.tasks[s.currentID]
	return task, ok
}

// Filter narrows GetTasks's result set. Zero-value fields are not applied.
type Filter struct {
	Status   Status
	Priority Priority
	Tag      string
}

// GetTasks returns tasks matching filter, sorted by priority (critical
// first) then descending UpdatedAt.
func (s *Service) GetTasks(filter Filter) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.Tag != "" && !hasTag(t.Tags, filter.Tag) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if priorityRank[out[i].Priority] != priorityRank[out[j].Priority] {
			return priorityRank[out[i].Priority] > priorityRank[out[j].Priority]
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// GetPendingTasks is a convenience wrapper over GetTasks for pending-only.
func (s *Service) GetPendingTasks() []*Task {
	return s.GetTasks(Filter{Status: StatusPending})
}

// ClearCompletedTasks deletes every completed task and returns the count
// removed.
func (s *Service) ClearCompletedTasks() int {
	s.mu.Lock()
	ids := make([]string, 0)
	for id, t := range s.tasks {
		if t.Status == StatusCompleted {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.DeleteTask(id)
	}
	return len(ids)
}

// ClearAllTasks deletes every task and returns the count removed.
func (s *Service) ClearAllTasks() int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.DeleteTask(id)
	}
	return len(ids)
}

// CleanupCompletedTasks removes completed tasks older than
// CompletedRetentionDays, or the oldest excess beyond MaxCompletedTasks,
// whichever applies.
func (s *Service) CleanupCompletedTasks() int {
	s.mu.Lock()
	var completed []*Task
	for _, t := range s.tasks {
		if t.Status == StatusCompleted {
			completed = append(completed, t)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.Before(*completed[j].CompletedAt)
	})

	cutoff := time.Now().AddDate(0, 0, -s.config.CompletedRetentionDays)
	toDelete := map[string]bool{}
	for _, t := range completed {
		if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			toDelete[t.ID] = true
		}
	}
	if excess := len(completed) - s.config.MaxCompletedTasks; s.config.MaxCompletedTasks > 0 && excess > 0 {
		for _, t := range completed[:excess] {
			toDelete[t.ID] = true
		}
	}
	s.mu.Unlock()

	for id := range toDelete {
		s.DeleteTask(id)
	}
	return len(toDelete)
}

// SetGatesEnabled toggles gate enforcement on completion.
func (s *Service) SetGatesEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.GatesEnabled = enabled
}

// UpdateGatePolicy merges patch into the underlying gate engine's policy.
func (s *Service) UpdateGatePolicy(patch gates.GatePolicyPatch) {
	if s.gates != nil {
		s.gates.UpdateConfig(patch)
	}
}

// ServiceStatus summarizes the service's current state.
type ServiceStatus struct {
	TotalTasks     int
	PendingTasks   int
	InProgressTask string
	GatesEnabled   bool
}

// GetStatus returns a snapshot of the service's aggregate state.
func (s *Service) GetStatus() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, t := range s.tasks {
		if t.Status == StatusPending {
			pending++
		}
	}
	return ServiceStatus{
		TotalTasks:     len(s.tasks),
		PendingTasks:   pending,
		InProgressTask: s.currentID,
		GatesEnabled:   s.config.GatesEnabled,
	}
}
