package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook and reply pipeline.
type RelayMetrics struct {
	inboundTotal      *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	completionLatency *prometheus.HistogramVec
	webhookLatency    prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound gateway webhooks by acknowledgment status",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "gateway",
			Name:      "outbound_total",
			Help:      "Total outbound gateway sends by result",
		}, []string{"status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total reply pipeline runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of reply pipeline runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "completion",
			Name:      "latency_seconds",
			Help:      "Latency of completion API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook acknowledgment",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.runsTotal, m.runDuration, m.completionLatency, m.webhookLatency)
	return m
}

func (m *RelayMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveRun(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *RelayMetrics) ObserveCompletion(status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(status).Observe(seconds)
}

func (m *RelayMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
