package mediacache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/mediacache/cache"
	"github.com/meigma/mediacache/transfer"
)

const metricsNamespace = "mediacache"

// Metrics holds the coordinator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	lookups   *prometheus.CounterVec
	transfers *prometheus.HistogramVec
	publishes *prometheus.CounterVec
	preloads  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		transfers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Remote transfer duration by direction and status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"direction", "status"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publishes_total",
			Help:      "PublishImage calls by outcome.",
		}, []string{"outcome"}),
		preloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "preload_items_total",
			Help:      "PreloadAll items by outcome.",
		}, []string{"outcome"}),
	}
	for _, col := range []prometheus.Collector{m.lookups, m.transfers, m.publishes, m.preloads} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) lookup(tier cache.Tier, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(string(tier), result).Inc()
}

func (m *Metrics) observeTransfer(t transfer.Task) {
	if m == nil {
		return
	}
	if t.Status != transfer.Succeeded && t.Status != transfer.Failed {
		return
	}
	m.transfers.WithLabelValues(t.Direction.String(), t.Status.String()).Observe(t.Elapsed.Seconds())
}

func (m *Metrics) publish(outcome string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) preload(r BatchResult) {
	if m == nil {
		return
	}
	m.preloads.WithLabelValues("loaded").Add(float64(len(r.Loaded)))
	m.preloads.WithLabelValues("failed").Add(float64(len(r.Failed)))
	m.preloads.WithLabelValues("skipped").Add(float64(len(r.Skipped)))
}
