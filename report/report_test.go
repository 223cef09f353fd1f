package report

import (
	"strings"
	"testing"
	"time"

	"github.com/dshills/ccguard/eventbus"
)

func TestBuildMarkdownEmptyHistory(t *testing.T) {
	md := BuildMarkdown("Status", nil)
	if !strings.Contains(md, "No events recorded") {
		t.Fatalf("expected empty-history note, got %q", md)
	}
}

func TestBuildMarkdownIncludesKnownEventLabel(t *testing.T) {
	history := []eventbus.Event{
		{
			Type:      eventbus.EventTaskComplete,
			Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
			Source:    "workflow-service",
			Data:      map[string]any{"taskId": "t-1"},
		},
	}
	md := BuildMarkdown("Status", history)
	if !strings.Contains(md, "Task completed") {
		t.Fatalf("expected label for task:complete, got %q", md)
	}
	if !strings.Contains(md, "taskId=t-1") {
		t.Fatalf("expected event data rendered, got %q", md)
	}
}

func TestBuildMarkdownFallsBackToRawTypeForUnknownEvent(t *testing.T) {
	history := []eventbus.Event{
		{Type: eventbus.EventType("custom:event"), Timestamp: time.Now()},
	}
	md := BuildMarkdown("Status", history)
	if !strings.Contains(md, "custom:event") {
		t.Fatalf("expected raw event type fallback, got %q", md)
	}
}

func TestRenderHTMLProducesHTMLFromMarkdown(t *testing.T) {
	md := BuildMarkdown("Status", []eventbus.Event{
		{Type: eventbus.EventTaskCreate, Timestamp: time.Now()},
	})
	html, err := RenderHTML(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "<h1>Status</h1>") {
		t.Fatalf("expected rendered heading, got %q", html)
	}
	if !strings.Contains(html, "<table>") {
		t.Fatalf("expected rendered table, got %q", html)
	}
}
