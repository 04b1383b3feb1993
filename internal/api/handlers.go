package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/quantrail/price-sync/internal/database"
	"github.com/quantrail/price-sync/internal/gaps"
	"github.com/quantrail/price-sync/internal/models"
	"github.com/quantrail/price-sync/internal/syncer"
)

const dateLayout = "2006-01-02"

// EventPublisher emits deletion events. May be absent.
type EventPublisher interface {
	PublishSymbolDeleted(ctx context.Context, symbol string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db           *database.DB
	analyzer     *gaps.Analyzer
	orchestrator *syncer.Orchestrator
	cache        *gaps.Cache
	producer     EventPublisher
	logger       *logrus.Logger
}

// NewHandler creates a new Handler. Cache and producer may be nil.
func NewHandler(db *database.DB, analyzer *gaps.Analyzer, orchestrator *syncer.Orchestrator, cache *gaps.Cache, producer EventPublisher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		db:           db,
		analyzer:     analyzer,
		orchestrator: orchestrator,
		cache:        cache,
		producer:     producer,
		logger:       logger,
	}
}

// GetMappings handles GET /mappings
func (h *Handler) GetMappings(w http.ResponseWriter, r *http.Request) {
	filter := database.MappingFilter{
		MatchedOnly: r.URL.Query().Get("matched") == "true",
		Index:       r.URL.Query().Get("index"),
	}

	mappings, err := h.db.GetSymbolMappings(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mappings)
}

// RefreshMappings handles POST /mappings/refresh
func (h *Handler) RefreshMappings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []models.LocalEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		respondError(w, http.StatusBadRequest, "entries are required")
		return
	}

	mappings, err := h.orchestrator.RefreshMappings(r.Context(), req.Entries)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mappings)
}

// GetPriceRange handles GET /prices/{symbol}
func (h *Handler) GetPriceRange(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	start, end, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	prices, err := h.db.QueryPrices(symbol, start, end, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, prices)
}

// AnalyzeGaps handles GET /gaps/{symbol}
func (h *Handler) AnalyzeGaps(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	report, err := h.analyzer.AnalyzeGaps(r.Context(), symbol)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// GetGapStatus handles GET /gaps/{symbol}/status, serving the cached
// snapshot without recomputing
func (h *Handler) GetGapStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if h.cache == nil {
		respondError(w, http.StatusNotFound, "gap status cache not configured")
		return
	}

	report, err := h.cache.Get(r.Context(), symbol)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "no cached gap status for "+symbol)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Sync handles POST /sync for one or many symbols
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols       []string `json:"symbols"`
		Start         string   `json:"start,omitempty"`
		End           string   `json:"end,omitempty"`
		Force         bool     `json:"force,omitempty"`
		MaxConcurrent int      `json:"max_concurrent,omitempty"`
		Sequential    bool     `json:"sequential,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) == 0 {
		respondError(w, http.StatusBadRequest, "symbols are required")
		return
	}

	start, end, err := parseDates(req.Start, req.End)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(req.Symbols) == 1 && !req.Sequential {
		result, err := h.orchestrator.SyncOne(r.Context(), req.Symbols[0], start, end, req.Force)
		if err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	var batch *models.SyncBatchResult
	if req.Sequential {
		batch = h.orchestrator.SyncSequential(r.Context(), req.Symbols, start, end, req.Force)
	} else {
		batch = h.orchestrator.SyncMany(r.Context(), req.Symbols, start, end, req.Force, req.MaxConcurrent)
	}

	respondJSON(w, http.StatusOK, batch)
}

// DeleteSymbol handles DELETE /symbols/{symbol}. The confirm query
// parameter is mandatory; per-partition deletion counts are returned.
func (h *Handler) DeleteSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, http.StatusBadRequest, "destructive operation requires confirm=true")
		return
	}

	counts := h.db.DeleteSymbolPrices(symbol)
	var total int64
	for _, n := range counts {
		total += n
	}

	if err := h.db.DeleteStockMetadata(symbol); err != nil {
		h.logger.WithField("symbol", symbol).WithError(err).Warn("failed to delete sync metadata")
	}

	if h.producer != nil {
		if err := h.producer.PublishSymbolDeleted(r.Context(), symbol); err != nil {
			h.logger.WithField("symbol", symbol).WithError(err).Warn("failed to publish deletion event")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"deleted":    total,
		"partitions": counts,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	return parseDates(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
}

// parseDates applies defaults (earliest supported date through today)
// and validates ordering
func parseDates(startStr, endStr string) (time.Time, time.Time, error) {
	start := time.Date(database.EarliestYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC().Truncate(24 * time.Hour)

	var err error
	if startStr != "" {
		start, err = time.Parse(dateLayout, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q, want YYYY-MM-DD", startStr)
		}
	}
	if endStr != "" {
		end, err = time.Parse(dateLayout, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q, want YYYY-MM-DD", endStr)
		}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
