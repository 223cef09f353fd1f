// Package workflow implements the Workflow Service: a persistent task store
// with a pending/in-progress/blocked/done life cycle that invokes the
// completion-gate engine on every completion attempt and records a
// timeline, publishing task lifecycle events to an eventbus.Bus.
package workflow

import "time"

// Status is a Task's life-cycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders tasks returned by GetTasks: critical first, low last.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityRank gives Priority a total order for sorting, higher first.
var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Note is a freeform annotation attached to a task.
type Note struct {
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work tracked by the Workflow Service. Checkpoints are
// opaque ids referencing files the core never reads itself.
type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	Priority       Priority   `json:"priority"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ParentID       string     `json:"parentId,omitempty"`
	Subtasks       []string   `json:"subtasks,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Notes          []Note     `json:"notes,omitempty"`
	FilesAffected  []string   `json:"filesAffected,omitempty"`
	Checkpoints    []string   `json:"checkpoints,omitempty"`
	EstimatedTokens *int64    `json:"estimatedTokens,omitempty"`
	ActualTokens    *int64    `json:"actualTokens,omitempty"`
}

// CreateParams are the fields a caller may set when creating a task; the
// rest are derived (id, status, progress, timestamps).
type CreateParams struct {
	Name            string
	Description     string
	Priority        Priority
	ParentID        string
	Tags            []string
	EstimatedTokens *int64
}

// UpdatePatch is a partial update applied by UpdateTask. Nil/zero fields are
// left unchanged. A non-nil Progress is clamped into [0,100], and UpdateTask
// holds it at 99 unless the task is already completed.
type UpdatePatch struct {
	Name         *string
	Description  *string
	Progress     *int
	Priority     *Priority
	Tags         []string
	ActualTokens *int64
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
