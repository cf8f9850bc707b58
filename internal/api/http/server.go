package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arkilian/metaquery/internal/config"
)

const topStats = 10

// NewHandler routes the API:
//
//	POST /v1/query    run a query
//	GET  /v1/schemas  list schemas, tables and columns
//	GET  /v1/stats    execution counters and frequent predicates
//	GET  /health      liveness, 503 while draining
func NewHandler(engine Engine, maxRows int, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := Chain(
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		DrainMiddleware(engine.IsShuttingDown),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/query", api(NewQueryHandler(engine, maxRows, logger)))
	mux.Handle("/v1/schemas", api(NewSchemasHandler(engine)))
	mux.Handle("/v1/stats", api(NewStatsHandler(engine, topStats)))
	mux.HandleFunc("/health", healthHandler(engine))
	return mux
}

// NewServer creates an http.Server for the API.
func NewServer(cfg config.HTTPConfig, engine Engine, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(engine, cfg.MaxRows, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine.IsShuttingDown() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
