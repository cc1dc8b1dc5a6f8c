package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dataresource/internal/resource"
)

// Metrics counts resource sessions. It implements resource.Observer.
type Metrics struct {
	Opens     *prometheus.CounterVec
	ReadBytes *prometheus.CounterVec
	ReadRows  *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	Open      prometheus.Gauge
}

var _ resource.Observer = (*Metrics)(nil)

// New creates and registers resource metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataresource",
			Subsystem: "resource",
			Name:      "opens_total",
			Help:      "Resource sessions opened, by format and scheme.",
		}, []string{"format", "scheme"}),
		ReadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataresource",
			Subsystem: "resource",
			Name:      "read_bytes_total",
			Help:      "Decompressed bytes read by closed sessions.",
		}, []string{"format"}),
		ReadRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataresource",
			Subsystem: "resource",
			Name:      "read_rows_total",
			Help:      "Data rows read by closed sessions.",
		}, []string{"format"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataresource",
			Subsystem: "resource",
			Name:      "errors_total",
			Help:      "Failed resource operations, by operation and error kind.",
		}, []string{"op", "kind"}),
		Open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dataresource",
			Subsystem: "resource",
			Name:      "open_sessions",
			Help:      "Number of currently open resource sessions.",
		}),
	}

	reg.MustRegister(m.Opens, m.ReadBytes, m.ReadRows, m.Errors, m.Open)
	return m
}

func (m *Metrics) Opened(format, scheme string) {
	m.Opens.WithLabelValues(label(format), label(scheme)).Inc()
	m.Open.Inc()
}

func (m *Metrics) Closed(format string, bytes int64, rows int) {
	m.Open.Dec()
	m.ReadBytes.WithLabelValues(label(format)).Add(float64(bytes))
	m.ReadRows.WithLabelValues(label(format)).Add(float64(rows))
}

func (m *Metrics) Failed(op string, kind resource.Kind) {
	m.Errors.WithLabelValues(op, kind.String()).Inc()
}

func label(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
