// Package report renders a task/timeline status report from an
// eventbus.Bus's event history, first as Markdown and then, via goldmark,
// as HTML for display in a browser or ticket comment.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dshills/ccguard/eventbus"
)

// markdownRenderer has GFM tables enabled, since BuildMarkdown emits a
// pipe-table timeline.
var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// eventLabels maps event types to the heading used in the rendered timeline.
var eventLabels = map[eventbus.EventType]string{
	eventbus.EventTaskCreate:         "Task created",
	eventbus.EventTaskStart:          "Task started",
	eventbus.EventTaskComplete:       "Task completed",
	eventbus.EventTaskFail:           "Task failed",
	eventbus.EventWorkflowGatePassed: "Gate passed",
	eventbus.EventWorkflowGatePending: "Gate pending",
	eventbus.EventWorkflowGateBlocked: "Gate blocked",
	eventbus.EventNodeCompleted:       "Node completed",
	eventbus.EventNodeSkipped:         "Node skipped",
	eventbus.EventNodeFailed:          "Node failed",
	eventbus.EventWorkflowCompleted:   "Workflow completed",
}

// BuildMarkdown renders history as a chronological Markdown timeline.
func BuildMarkdown(title string, history []eventbus.Event) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "# %s\n\n", title)

	if len(history) == 0 {
		buf.WriteString("_No events recorded._\n")
		return buf.String()
	}

	buf.WriteString("| Time | Event | Source | Details |\n")
	buf.WriteString("|---|---|---|---|\n")
	for _, event := range history {
		label, ok := eventLabels[event.Type]
		if !ok {
			label = string(event.Type)
		}
		fmt.Fprintf(&buf, "| %s | %s | %s | %s |\n",
			event.Timestamp.Format(time.RFC3339),
			label,
			orDash(event.Source),
			formatData(event.Data),
		)
	}
	return buf.String()
}

// RenderHTML converts Markdown (as produced by BuildMarkdown) to an HTML
// fragment.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("report: rendering markdown: %w", err)
	}
	return buf.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatData(data map[string]any) string {
	if len(data) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, ", ")
}
