// Package metrics exposes a Prometheus registry for the workflow, agent,
// checkpoint, and HTTP surfaces. It owns no business logic; components that
// already track these events (Executor, the worker/orchestrator loops, the
// API server) call into it at the same points they already emit progress
// events or log lines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meridian"

// Registry holds every collector this process exposes on /metrics.
type Registry struct {
	reg *prometheus.Registry

	WorkflowsStarted   prometheus.Counter
	WorkflowsCompleted *prometheus.CounterVec // status
	ActiveSessions     prometheus.Gauge

	AgentInvocations *prometheus.CounterVec // agent_id, status
	AgentDuration    *prometheus.HistogramVec

	ToolInvocations *prometheus.CounterVec // tool_id, status

	CheckpointsPending  prometheus.Gauge
	CheckpointsResolved *prometheus.CounterVec // action

	HTTPRequests *prometheus.CounterVec // method, route, status text
	HTTPDuration *prometheus.HistogramVec
}

// New builds a Registry with every collector registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.WorkflowsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "workflow", Name: "started_total",
		Help: "Total number of workflow runs started.",
	})
	r.WorkflowsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "workflow", Name: "completed_total",
		Help: "Total number of workflow runs completed, by terminal status.",
	}, []string{"status"})
	r.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "workflow", Name: "active_sessions",
		Help: "Number of workflow sessions currently running.",
	})

	r.AgentInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "agent", Name: "invocations_total",
		Help: "Total number of worker-loop invocations, by agent and terminal status.",
	}, []string{"agent_id", "status"})
	r.AgentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "agent", Name: "invocation_duration_seconds",
		Help:    "Worker-loop invocation duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"agent_id"})

	r.ToolInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "invocations_total",
		Help: "Total number of tool invocations via the tools gateway, by tool and status.",
	}, []string{"tool_id", "status"})

	r.CheckpointsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "checkpoint", Name: "pending",
		Help: "Number of checkpoints currently awaiting resolution.",
	})
	r.CheckpointsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "checkpoint", Name: "resolved_total",
		Help: "Total number of checkpoints resolved, by action.",
	}, []string{"action"})

	r.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "Total HTTP requests served, by method, route, and status text.",
	}, []string{"method", "route", "status"})
	r.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request duration in seconds, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.reg.MustRegister(
		r.WorkflowsStarted, r.WorkflowsCompleted, r.ActiveSessions,
		r.AgentInvocations, r.AgentDuration,
		r.ToolInvocations,
		r.CheckpointsPending, r.CheckpointsResolved,
		r.HTTPRequests, r.HTTPDuration,
	)
	return r
}

// Handler serves the registry's collectors in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one completed request. route should be the matched
// route template (e.g. "/runs/:session_id/status"), not the raw path, to
// keep cardinality bounded.
func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	label := http.StatusText(status)
	if label == "" {
		label = "unknown"
	}
	r.HTTPRequests.WithLabelValues(method, route, label).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveAgent records one completed worker-loop invocation.
func (r *Registry) ObserveAgent(agentID, status string, elapsed time.Duration) {
	r.AgentInvocations.WithLabelValues(agentID, status).Inc()
	r.AgentDuration.WithLabelValues(agentID).Observe(elapsed.Seconds())
}

// ObserveTool records one tool invocation outcome ("ok", "denied", or "error").
func (r *Registry) ObserveTool(toolID, status string) {
	r.ToolInvocations.WithLabelValues(toolID, status).Inc()
}
