// Package telemetry wires the core's eventbus events into Prometheus
// metrics and OpenTelemetry spans. Like logging, it is an ambient
// collaborator bolted onto the bus from the outside: the core never
// imports prometheus or otel directly.
package telemetry

import (
	"context"

	"github.com/dshills/ccguard/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the Prometheus collectors tracking core activity.
type Metrics struct {
	tasksCreated   prometheus.Counter
	tasksCompleted prometheus.Counter
	gateOutcomes   *prometheus.CounterVec
	nodeOutcomes   *prometheus.CounterVec
}

// NewMetrics registers the core's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccguard_tasks_created_total",
			Help: "Total tasks created by the Workflow Service.",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccguard_tasks_completed_total",
			Help: "Total tasks marked completed.",
		}),
		gateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccguard_gate_outcomes_total",
			Help: "Completion gate outcomes by status.",
		}, []string{"status"}),
		nodeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccguard_taskgraph_node_outcomes_total",
			Help: "DAG executor node outcomes by terminal state.",
		}, []string{"state"}),
	}
}

// tracerName identifies this module's tracer in OTel exporters.
const tracerName = "github.com/dshills/ccguard"

// AttachBus subscribes Metrics to bus and returns the subscription id.
func (m *Metrics) AttachBus(bus *eventbus.Bus) string {
	return bus.On(eventbus.Wildcard, func(event eventbus.Event) error {
		switch event.Type {
		case eventbus.EventTaskCreate:
			m.tasksCreated.Inc()
		case eventbus.EventTaskComplete:
			m.tasksCompleted.Inc()
		case eventbus.EventWorkflowGatePassed:
			m.gateOutcomes.WithLabelValues("passed").Inc()
		case eventbus.EventWorkflowGatePending:
			m.gateOutcomes.WithLabelValues("pending").Inc()
		case eventbus.EventWorkflowGateBlocked:
			m.gateOutcomes.WithLabelValues("blocked").Inc()
		case eventbus.EventNodeCompleted:
			m.nodeOutcomes.WithLabelValues("completed").Inc()
		case eventbus.EventNodeSkipped:
			m.nodeOutcomes.WithLabelValues("skipped").Inc()
		case eventbus.EventNodeFailed:
			m.nodeOutcomes.WithLabelValues("failed").Inc()
		case eventbus.EventNodeGated:
			m.nodeOutcomes.WithLabelValues("gated").Inc()
		}
		return nil
	})
}

// StartSpan opens a span named name under this module's tracer, for
// wrapping a single CompleteTask or Execute call end-to-end.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, name)
}
