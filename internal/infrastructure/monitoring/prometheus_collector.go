package monitoring

import (
	"pairlink/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder on the default
// prometheus registry.
type PrometheusCollector struct {
	// Gauges
	sessionsPending prometheus.Gauge
	pairingsActive  prometheus.Gauge
	identitiesLive  prometheus.Gauge

	// Counters
	framesForwarded *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	sweepEvictions  prometheus.Counter
	codesExpired    prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pairlink_sessions_pending",
			Help: "Number of pending session codes awaiting a join",
		}),

		pairingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pairlink_pairings_active",
			Help: "Number of active pairings",
		}),

		identitiesLive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pairlink_identities_live",
			Help: "Number of identities within the activity window",
		}),

		framesForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairlink_frames_forwarded_total",
			Help: "Total media frames relayed to a peer",
		}, []string{"channel"}),

		frameBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairlink_frame_bytes_total",
			Help: "Total relayed media payload bytes",
		}, []string{"channel"}),

		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairlink_frames_dropped_total",
			Help: "Total media frames dropped before relay",
		}, []string{"channel", "reason"}),

		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairlink_events_published_total",
			Help: "Total outbound events delivered to private channels",
		}, []string{"type"}),

		sweepEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pairlink_sweep_evictions_total",
			Help: "Total identities evicted by the liveness sweep",
		}),

		codesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pairlink_session_codes_expired_total",
			Help: "Total session codes removed by TTL expiry",
		}),
	}
}

func (p *PrometheusCollector) SetPendingSessions(n int) {
	p.sessionsPending.Set(float64(n))
}

func (p *PrometheusCollector) SetActivePairings(n int) {
	p.pairingsActive.Set(float64(n))
}

func (p *PrometheusCollector) SetLiveIdentities(n int) {
	p.identitiesLive.Set(float64(n))
}

func (p *PrometheusCollector) RecordFrameForwarded(channel domain.MediaChannel, bytes int) {
	p.framesForwarded.WithLabelValues(string(channel)).Inc()
	p.frameBytes.WithLabelValues(string(channel)).Add(float64(bytes))
}

func (p *PrometheusCollector) RecordFrameDropped(channel domain.MediaChannel, reason string) {
	p.framesDropped.WithLabelValues(string(channel), reason).Inc()
}

func (p *PrometheusCollector) RecordEventPublished(eventType domain.EventType) {
	p.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

func (p *PrometheusCollector) RecordSweepEvictions(n int) {
	p.sweepEvictions.Add(float64(n))
}

func (p *PrometheusCollector) RecordCodeExpired() {
	p.codesExpired.Inc()
}
