// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package metrics

import "net/http"

// noopMetrics implements a no-op metrics service.
type noopMetrics struct{}

func defaultNoopMetrics() Metrics { return &noopMetrics{} }

func (n *noopMetrics) GetOrCreateCountMeter(string) CountMeter { return &noopMeter{} }

func (n *noopMetrics) GetOrCreateGaugeMeter(string) GaugeMeter { return &noopMeter{} }

func (n *noopMetrics) GetOrCreateGaugeVecMeter(string, []string) GaugeVecMeter {
	return &noopMeter{}
}

func (n *noopMetrics) GetOrCreateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})
}

type noopMeter struct{}

func (m *noopMeter) Add(int64)                             {}
func (m *noopMeter) Set(int64)                             {}
func (m *noopMeter) SetWithLabel(int64, map[string]string) {}
