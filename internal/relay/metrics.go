// ABOUTME: Prometheus metrics for the relay pipeline
// ABOUTME: Counts received, filtered, relayed messages and per-platform dispatch failures

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the relay pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	MessagesReceived  prometheus.Counter
	MessagesFiltered  prometheus.Counter
	MessagesRelayed   prometheus.Counter
	ThreadsSummarized prometheus.Counter
	DispatchFailures  *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "scope_relay_messages_received_total",
			Help: "Inbound messages that passed the relay filter",
		}),
		MessagesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "scope_relay_messages_filtered_total",
			Help: "Inbound messages rejected by the relay filter",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scope_relay_messages_relayed_total",
			Help: "Messages dispatched to at least one destination platform",
		}),
		ThreadsSummarized: factory.NewCounter(prometheus.CounterOpts{
			Name: "scope_relay_threads_summarized_total",
			Help: "Thread digests emitted in place of per-reply relays",
		}),
		DispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_relay_dispatch_failures_total",
			Help: "Per-binding dispatch failures, by destination platform",
		}, []string{"platform"}),
	}
}

func (m *Metrics) incReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) incFiltered() {
	if m != nil {
		m.MessagesFiltered.Inc()
	}
}

func (m *Metrics) incRelayed() {
	if m != nil {
		m.MessagesRelayed.Inc()
	}
}

func (m *Metrics) incSummarized() {
	if m != nil {
		m.ThreadsSummarized.Inc()
	}
}

func (m *Metrics) incDispatchFailure(platform string) {
	if m != nil {
		m.DispatchFailures.WithLabelValues(platform).Inc()
	}
}
