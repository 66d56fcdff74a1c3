// Package api serves the tracker's read endpoints and the manual scrape trigger.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/observability"
	"crypto-tracker/internal/orchestrator"
)

// Reader is the subset of storage.Store the API reads from.
type Reader interface {
	ListLatest(ctx context.Context) ([]*domain.Snapshot, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error)
}

// Runner triggers an extraction cycle.
type Runner interface {
	RunCycle(ctx context.Context) *orchestrator.CycleResult
}

// Options configures a Handler.
type Options struct {
	Store  Reader
	Runner Runner       // nil disables /api/scrape-now
	Feed   http.Handler // nil disables /ws
	Logger *zap.Logger
	Clock  func() time.Time
}

// Handler routes API requests.
type Handler struct {
	store  Reader
	runner Runner
	logger *zap.Logger
	clock  func() time.Time
	mux    *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		store:  opts.Store,
		runner: opts.Runner,
		logger: opts.Logger,
		clock:  opts.Clock,
		mux:    http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.clock == nil {
		h.clock = func() time.Time { return time.Now().UTC() }
	}

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.Handle("GET /metrics", observability.Handler())
	h.mux.HandleFunc("GET /api/cryptos", h.handleCryptos)
	h.mux.HandleFunc("GET /api/crypto/{symbol}/history", h.handleHistory)
	if h.runner != nil {
		h.mux.HandleFunc("GET /api/scrape-now", h.handleScrapeNow)
		h.mux.HandleFunc("POST /api/scrape-now", h.handleScrapeNow)
	}
	if opts.Feed != nil {
		h.mux.Handle("GET /ws", opts.Feed)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type cryptosResponse struct {
	Success   bool                  `json:"success"`
	Data      []domain.SnapshotView `json:"data"`
	Timestamp time.Time             `json:"timestamp"`
}

type historyResponse struct {
	Success bool                 `json:"success"`
	Data    []domain.HistoryView `json:"data"`
	Symbol  string               `json:"symbol"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Saved   int    `json:"saved"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleCryptos(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.store.ListLatest(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("list latest: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, cryptosResponse{
		Success:   true,
		Data:      domain.SnapshotViews(snaps),
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	points, err := h.store.GetHistory(r.Context(), symbol, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("get history: %w", err))
		return
	}

	data := make([]domain.HistoryView, len(points))
	for i, p := range points {
		data[i] = p.View()
	}
	h.writeJSON(w, http.StatusOK, historyResponse{Success: true, Data: data, Symbol: symbol})
}

func (h *Handler) handleScrapeNow(w http.ResponseWriter, r *http.Request) {
	result := h.runner.RunCycle(r.Context())
	switch {
	case result.Success:
		h.writeJSON(w, http.StatusOK, scrapeResponse{
			Success: true,
			Saved:   result.SavedCount,
			Message: fmt.Sprintf("Scraping completed successfully, saved %d assets", result.SavedCount),
		})
	case result.Failure == orchestrator.FailureBusy:
		h.writeError(w, http.StatusConflict, fmt.Errorf("a cycle is already running"))
	default:
		msg := string(result.Failure)
		if len(result.Errors) > 0 {
			msg += ": " + strings.Join(result.Errors, "; ")
		}
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("scrape failed (%s)", msg))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("api request failed", zap.Int("status", status), zap.Error(err))
	h.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
