package observ

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric vectors are created lazily on first use so call sites can stay
// one-liners. Label names must be stable per metric name; the first call
// fixes them.
type registry struct {
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

var reg = &registry{
	counters: map[string]*prometheus.CounterVec{},
	gauges:   map[string]*prometheus.GaugeVec{},
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IncCounter increments a labeled counter by one.
func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

// IncCounterBy increments a labeled counter by value.
func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	vec, ok := reg.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name},
			labelNames(labels),
		)
		prometheus.MustRegister(vec)
		reg.counters[name] = vec
	}
	reg.mu.Unlock()
	vec.With(labels).Add(value)
}

// SetGauge sets a labeled gauge value.
func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	vec, ok := reg.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: name},
			labelNames(labels),
		)
		prometheus.MustRegister(vec)
		reg.gauges[name] = vec
	}
	reg.mu.Unlock()
	vec.With(labels).Set(value)
}

// ServeMetrics exposes /metrics on addr and returns the server so the
// caller can shut it down.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
