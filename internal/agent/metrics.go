package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records graph activity on a dedicated registry.
type Metrics struct {
	registry     *prometheus.Registry
	nodeVisits   *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	turnDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightassistant_node_visits_total",
				Help: "Total number of orchestration node visits",
			},
			[]string{"node"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightassistant_tool_calls_total",
				Help: "Total number of tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightassistant_evaluator_verdicts_total",
				Help: "Evaluator verdicts by kind",
			},
			[]string{"verdict"},
		),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightassistant_turn_duration_seconds",
			Help:    "Duration of a full user turn",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(m.nodeVisits, m.toolCalls, m.verdicts, m.turnDuration)
	return m
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records the duration of one turn.
func (m *Metrics) ObserveTurn(d time.Duration) {
	m.turnDuration.Observe(d.Seconds())
}

// Hooks returns graph hooks that feed these metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnNodeEnter: func(_ context.Context, e NodeEvent) {
			m.nodeVisits.WithLabelValues(string(e.Node)).Inc()
		},
		OnToolReturn: func(_ context.Context, _ string, result domain.ToolResult) {
			m.toolCalls.WithLabelValues(result.Name, toolOutcome(result)).Inc()
		},
		OnVerdict: func(_ context.Context, _ string, j domain.EvaluatorJudgment) {
			m.verdicts.WithLabelValues(verdictLabel(j)).Inc()
		},
	}
}

func toolOutcome(result domain.ToolResult) string {
	if result.IsError {
		return "error"
	}
	return "ok"
}

func verdictLabel(j domain.EvaluatorJudgment) string {
	switch {
	case j.SuccessCriteriaMet:
		return "met"
	case j.UserInputNeeded:
		return "user_input_needed"
	default:
		return "retry"
	}
}
