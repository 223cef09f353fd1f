// Package eventbus provides a typed, wildcard-capable in-process publish/subscribe
// substrate with bounded history and safe error isolation.
//
// It is the one sanctioned coupling between the other core components
// (workflow, gates, taskgraph): they publish observability and lifecycle
// events here instead of calling each other directly.
package eventbus

import "time"

// EventType identifies the category and name of an emitted Event.
//
// Types are drawn from a closed set of lifecycle, task, guard, test,
// workflow-gate, and taskgraph-node categories. The literal Wildcard is
// reserved for subscription only: it must never appear as the Type of an
// emitted Event.
type EventType string

// Wildcard subscribes to every event type. Emitting an event with this type
// is a programmer error; Bus.Emit does not guard against it, but nothing in
// this module ever constructs one.
const Wildcard EventType = "*"

// Event categories recognized by the core. Collaborators may mint their own
// EventType values (e.g. a custom Task Runner's progress events); these are
// the ones the core components themselves emit.
const (
	// Lifecycle events describe bus/service-wide state transitions.
	EventServiceReady EventType = "lifecycle:service_ready"

	// Task events mirror the Workflow Service's task life cycle.
	EventTaskCreate   EventType = "task:create"
	EventTaskStart    EventType = "task:start"
	EventTaskProgress EventType = "task:progress"
	EventTaskComplete EventType = "task:complete"
	EventTaskFail     EventType = "task:fail"

	// Guard and test events describe evidence arriving from external
	// collaborators (guard checkers, test runners).
	EventGuardEvidence EventType = "guard:evidence"
	EventTestEvidence  EventType = "test:evidence"

	// Workflow gate events are timeline entries recorded on every
	// completion attempt.
	EventWorkflowGatePassed  EventType = "workflow:gate_passed"
	EventWorkflowGatePending EventType = "workflow:gate_pending"
	EventWorkflowGateBlocked EventType = "workflow:gate_blocked"

	// Taskgraph node events describe the DAG Workflow Executor's
	// per-node and per-run lifecycle.
	EventNodeStarted       EventType = "taskgraph:node:started"
	EventNodeCompleted     EventType = "taskgraph:node:completed"
	EventNodeGated         EventType = "taskgraph:node:gated"
	EventNodeSkipped       EventType = "taskgraph:node:skipped"
	EventNodeFailed        EventType = "taskgraph:node:failed"
	EventNodeBypassGates   EventType = "taskgraph:node:bypass_gates"
	EventWorkflowCompleted EventType = "taskgraph:workflow:completed"
)

// Event is an immutable record describing something that happened.
//
// Source is optional and names the collaborator that emitted the event
// (e.g. "workflow-service", "taskgraph-executor"), useful when multiple
// components share one bus.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Source    string         `json:"source,omitempty"`
}
