package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/iocscope/internal/adapter/exporter"
	"github.com/hive-corporation/iocscope/internal/adapter/repository"
	"github.com/hive-corporation/iocscope/internal/core/domain"
	"github.com/hive-corporation/iocscope/internal/core/service"
)

// maxRequestBytes caps the size of a submitted lookup body.
const maxRequestBytes = 1 << 20

// LookupAPI is the service surface the HTTP and gRPC handlers expose.
type LookupAPI interface {
	Extract(text string) []domain.IndicatorToken
	Lookup(ctx context.Context, text string) (*service.LookupReport, error)
	History(ctx context.Context, page, perPage int) (*service.HistoryPage, error)
	Get(ctx context.Context, id string) (domain.LookupRecord, error)
	Stats(ctx context.Context) (*service.Stats, error)
	Since(ctx context.Context, since time.Time, limit int) ([]domain.LookupRecord, error)
}

type RestHandler struct {
	api           LookupAPI
	cefExporter   *exporter.CEFExporter
	stixExporter  *exporter.STIXExporter
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// NewRestHandler builds the REST handler. lookupTimeout bounds one bulk lookup request.
func NewRestHandler(api LookupAPI, lookupTimeout time.Duration, logger *slog.Logger) *RestHandler {
	if lookupTimeout <= 0 {
		lookupTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RestHandler{
		api:           api,
		cefExporter:   exporter.NewCEFExporter(api),
		stixExporter:  exporter.NewSTIXExporter(api),
		lookupTimeout: lookupTimeout,
		logger:        logger,
	}
}

type lookupRequest struct {
	Text string `json:"text"`
}

type lookupResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Results []service.IndicatorResult `json:"results"`
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "iocscope-api",
	}
	writeJSON(w, http.StatusOK, response)
}

// Lookup extracts every indicator from the submitted text and queries all routed sources.
func (h *RestHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.lookupTimeout)
	defer cancel()

	report, err := h.api.Lookup(ctx, req.Text)
	switch {
	case errors.Is(err, service.ErrNoIndicators):
		writeJSON(w, http.StatusBadRequest, lookupResponse{
			Success: false,
			Message: "No valid IOCs detected",
			Results: []service.IndicatorResult{},
		})
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "lookup timed out")
		return
	case err != nil:
		h.logger.Error("ioc lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{
		Success: true,
		Message: fmt.Sprintf("Looked up %d IOCs", len(report.Results)),
		Results: report.Results,
	})
}

// Extract classifies the submitted text without querying any source.
func (h *RestHandler) Extract(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	tokens := h.api.Extract(req.Text)
	if tokens == nil {
		tokens = []domain.IndicatorToken{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": len(tokens) > 0,
		"count":   len(tokens),
		"iocs":    tokens,
	})
}

func (h *RestHandler) decodeText(w http.ResponseWriter, r *http.Request) (lookupRequest, bool) {
	var req lookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing 'text' field")
		return req, false
	}
	return req, true
}

// History returns one page of stored lookups, newest first.
func (h *RestHandler) History(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	perPage, err := intParam(r, "per_page", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if perPage > 100 {
		perPage = 100
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	history, err := h.api.History(ctx, page, perPage)
	if err != nil {
		h.logger.Error("history retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*service.HistoryPage
	}{true, history})
}

// HistoryEntry returns a single stored lookup.
func (h *RestHandler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, err := h.api.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lookup not found")
		return
	}
	if err != nil {
		h.logger.Error("history entry retrieval failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load lookup")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *RestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.api.Stats(ctx)
	if err != nil {
		h.logger.Error("stats retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"total_lookups": stats.TotalLookups,
	})
}

// Feed exports stored lookups for SIEM ingestion
func (h *RestHandler) Feed(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	since := r.URL.Query().Get("since") // e.g., "24h", "7d"

	var sinceTime time.Time
	if since != "" {
		duration, err := parseSince(since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'since' parameter (use format like '24h', '7d')")
			return
		}
		sinceTime = time.Now().Add(-duration)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	switch format {
	case "cef":
		data, err := h.cefExporter.Export(ctx, sinceTime)
		if err != nil {
			h.logger.Error("CEF export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export CEF feed")
			return
		}
		writeText(w, "text/plain; charset=utf-8", data)

	case "stix", "":
		data, err := h.stixExporter.Export(ctx, sinceTime)
		if err != nil {
			h.logger.Error("STIX export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export STIX feed")
			return
		}
		writeText(w, "application/json; charset=utf-8", data)

	default:
		writeError(w, http.StatusBadRequest, "unsupported format (use 'cef' or 'stix')")
	}
}

// parseSince accepts Go durations plus a day suffix ("7d").
func parseSince(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return n, nil
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("error writing feed response", "error", err)
	}
}
