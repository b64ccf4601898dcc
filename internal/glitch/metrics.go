package glitch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/glitchctl/internal/pulse"
)

// Metrics holds the controller's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	attempts   *prometheus.CounterVec
	resets     prometheus.Counter
	readErrors prometheus.Counter
	rejected   prometheus.Counter
	silence    prometheus.Gauge
	widths     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glitch_attempts_total",
				Help: "Glitch attempts by observation class",
			},
			[]string{"outcome"},
		),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glitch_target_resets_total",
			Help: "Target reset sequences issued",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glitch_target_read_errors_total",
			Help: "Target reads that failed and were counted as silence",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glitch_pulse_rejections_total",
			Help: "Pulse requests rejected by a busy pulse engine",
		}),
		silence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glitch_silence_polls",
			Help: "Current count of consecutive empty polls",
		}),
		widths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "glitch_pulse_width_ticks",
			Help:    "Requested pulse widths in timebase ticks",
			Buckets: prometheus.ExponentialBuckets(1, 2, 20),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.resets, m.readErrors, m.rejected, m.silence, m.widths)
	}
	return m
}

func (m *Metrics) observeWidth(w pulse.Width) {
	if m == nil {
		return
	}
	m.widths.Observe(float64(w))
}

func (m *Metrics) observeClass(c Class, silence int) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(c.String()).Inc()
	m.silence.Set(float64(silence))
}

func (m *Metrics) observeReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
	m.silence.Set(0)
}

func (m *Metrics) observeReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

func (m *Metrics) observeRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
