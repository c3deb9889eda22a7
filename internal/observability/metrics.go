package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the monitoring pipeline.
type Metrics struct {
	ReadingsIngested prometheus.Counter
	ReadingsDropped  prometheus.Counter
	ReadingsDeduped  prometheus.Counter
	AlertsDispatched prometheus.Counter

	// ChannelSends counts whole-channel dispatches; SMSRecipients counts
	// per-subscriber sends inside the SMS fan-out.
	ChannelSends  *prometheus.CounterVec // labels: channel, outcome={success,error}
	SMSRecipients *prometheus.CounterVec // labels: outcome={success,error}

	PendingConfirms prometheus.Gauge
	StaleStations   prometheus.Gauge
}

// NewMetrics creates and registers all instruments with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsIngested,
		m.ReadingsDropped,
		m.ReadingsDeduped,
		m.AlertsDispatched,
		m.ChannelSends,
		m.SMSRecipients,
		m.PendingConfirms,
		m.StaleStations,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "readings_ingested_total",
			Help:      "Total station readings accepted from all ingest sources.",
		}),
		ReadingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "readings_dropped_total",
			Help:      "Total readings dropped because the ingest channel was full.",
		}),
		ReadingsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "readings_deduped_total",
			Help:      "Total readings discarded as duplicates of a recent reading.",
		}),
		AlertsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "alerts_dispatched_total",
			Help:      "Total confirmed status-change alerts handed to the dispatcher.",
		}),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "channel_sends_total",
			Help:      "Notification channel dispatches by channel and outcome.",
		}, []string{"channel", "outcome"}),
		SMSRecipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "sms_recipients_total",
			Help:      "Per-subscriber SMS send attempts by outcome.",
		}, []string{"outcome"}),
		PendingConfirms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodwatch",
			Name:      "pending_confirms",
			Help:      "Stations currently holding a scheduled confirmation timer.",
		}),
		StaleStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodwatch",
			Name:      "stale_stations",
			Help:      "Stations whose latest reading is past the staleness threshold.",
		}),
	}
}
