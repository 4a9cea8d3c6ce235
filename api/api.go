// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package api assembles the HTTP API.
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Swapscanner/klaystaking-core/api/stakingapi"
	"github.com/Swapscanner/klaystaking-core/metrics"
	"github.com/Swapscanner/klaystaking-core/staking"
)

// Options configures the assembled handler.
type Options struct {
	// AllowedOrigins configures CORS; empty allows none.
	AllowedOrigins []string
	// EnableMetrics mounts the prometheus endpoint at /metrics.
	EnableMetrics bool
}

// New returns the HTTP handler of the whole API.
func New(svc *staking.Service, opts Options) http.Handler {
	router := mux.NewRouter()
	stakingapi.New(svc).Mount(router, "/staking")
	if opts.EnableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}

	handler := handlers.CompressHandler(router)
	if len(opts.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(opts.AllowedOrigins),
			handlers.AllowedHeaders([]string{"content-type"}),
		)(handler)
	}
	return handler
}
