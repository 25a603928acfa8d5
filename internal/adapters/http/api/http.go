// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/champstock/internal/adapters/mq/queue"
	"github.com/okian/champstock/internal/adapters/repository"
	service "github.com/okian/champstock/internal/app"
	"github.com/okian/champstock/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// TriggerUpdate queues an update cycle for a market.
	TriggerUpdate(ctx context.Context, marketID int64, source string) (types.TriggerAck, error)

	// Read operations expose prices of (slot, champion) pairs.
	Quote(ctx context.Context, marketID, slotID int64, champion string) (types.Quote, error)
	History(ctx context.Context, marketID, slotID int64, champion, period string) (types.History, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	marketsHandler *MarketsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		marketsHandler: NewMarketsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /markets/{id}/update", MetricsMiddleware(s.marketsHandler.HandleTrigger, "market_update"))
	mux.HandleFunc("GET /markets/{id}/stocks/{slot}/{champion}", MetricsMiddleware(s.marketsHandler.HandleQuote, "stock_quote"))
	mux.HandleFunc("GET /markets/{id}/stocks/{slot}/{champion}/history", MetricsMiddleware(s.marketsHandler.HandleHistory, "stock_history"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and persistence errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrMarketNotFound),
		errors.Is(err, repository.ErrPlayerNotFound),
		errors.Is(err, service.ErrChampionNotInPool):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, queue.ErrClosed), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
