// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "klaystaking"

// InitializePrometheusMetrics swaps the global metrics service for the
// prometheus-backed implementation. Call once, before meters are created.
func InitializePrometheusMetrics() {
	if _, ok := metrics.(*prometheusMetrics); !ok {
		metrics = newPrometheusMetrics()
	}
}

type prometheusMetrics struct {
	mu       sync.Mutex
	counters map[string]CountMeter
	gauges   map[string]GaugeMeter
	vecs     map[string]GaugeVecMeter
}

func newPrometheusMetrics() Metrics {
	return &prometheusMetrics{
		counters: make(map[string]CountMeter),
		gauges:   make(map[string]GaugeMeter),
		vecs:     make(map[string]GaugeVecMeter),
	}
}

func (o *prometheusMetrics) GetOrCreateCountMeter(name string) CountMeter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if meter, ok := o.counters[name]; ok {
		return meter
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name})
	prometheus.DefaultRegisterer.Register(c)
	meter := &promCountMeter{c}
	o.counters[name] = meter
	return meter
}

func (o *prometheusMetrics) GetOrCreateGaugeMeter(name string) GaugeMeter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if meter, ok := o.gauges[name]; ok {
		return meter
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name})
	prometheus.DefaultRegisterer.Register(g)
	meter := &promGaugeMeter{g}
	o.gauges[name] = meter
	return meter
}

func (o *prometheusMetrics) GetOrCreateGaugeVecMeter(name string, labels []string) GaugeVecMeter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if meter, ok := o.vecs[name]; ok {
		return meter
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name}, labels)
	prometheus.DefaultRegisterer.Register(g)
	meter := &promGaugeVecMeter{g}
	o.vecs[name] = meter
	return meter
}

func (o *prometheusMetrics) GetOrCreateHandler() http.Handler {
	return promhttp.Handler()
}

type promCountMeter struct {
	counter prometheus.Counter
}

func (m *promCountMeter) Add(v int64) { m.counter.Add(float64(v)) }

type promGaugeMeter struct {
	gauge prometheus.Gauge
}

func (m *promGaugeMeter) Add(v int64) { m.gauge.Add(float64(v)) }
func (m *promGaugeMeter) Set(v int64) { m.gauge.Set(float64(v)) }

type promGaugeVecMeter struct {
	gauge *prometheus.GaugeVec
}

func (m *promGaugeVecMeter) SetWithLabel(v int64, labels map[string]string) {
	m.gauge.With(labels).Set(float64(v))
}
