// Package metrics defines the Prometheus collectors exported by the
// server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studygroup"

// Metrics holds the server's collectors, registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	RPCRequests        *prometheus.CounterVec
	RPCDuration        *prometheus.HistogramVec
	MessagesSent       *prometheus.CounterVec
	ConflictRetries    prometheus.Counter
	SessionTransitions *prometheus.CounterVec
	SignOuts           *prometheus.CounterVec
	OrphansCollected   prometheus.Counter
	RemoteChanges      prometheus.Counter
}

// New creates the collectors. With runtime set, Go runtime and process
// collectors are registered as well.
func New(runtime bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC calls by procedure and result code.",
		}, []string{"procedure", "code"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling time by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_sent_total",
			Help:      "Committed chat messages by kind (text or attachment).",
		}, []string{"kind"}),
		ConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docstore_conflict_retries_total",
			Help:      "Transactions restarted after losing a version compare-and-swap.",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Activity monitor transitions by target state and reason.",
		}, []string{"to", "reason"}),
		SignOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_signouts_total",
			Help:      "Sessions signed out by reason (idle or logout).",
		}, []string{"reason"}),
		OrphansCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_messages_deleted_total",
			Help:      "Messages deleted because their group no longer exists.",
		}),
		RemoteChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_remote_changes_total",
			Help:      "Change notifications received from other instances.",
		}),
	}
	m.Registry.MustRegister(
		m.RPCRequests,
		m.RPCDuration,
		m.MessagesSent,
		m.ConflictRetries,
		m.SessionTransitions,
		m.SignOuts,
		m.OrphansCollected,
		m.RemoteChanges,
	)
	if runtime {
		m.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RegisterGauge exposes a value read on every scrape, such as the number
// of live subscriptions.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// MessageSent records a committed chat message.
func (m *Metrics) MessageSent(_ string, withAttachment bool) {
	kind := "text"
	if withAttachment {
		kind = "attachment"
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// ConflictRetry records a lost compare-and-swap.
func (m *Metrics) ConflictRetry(string) {
	m.ConflictRetries.Inc()
}

// SessionSignedOut records a session that reached EXPIRED.
func (m *Metrics) SessionSignedOut(reason string) {
	m.SignOuts.WithLabelValues(reason).Inc()
}

// OrphansDeleted records messages removed from a deleted group.
func (m *Metrics) OrphansDeleted(_ string, n int) {
	m.OrphansCollected.Add(float64(n))
}
