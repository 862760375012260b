// Package ingest proxies category form submissions to the upstream backend and
// denormalizes accepted payloads into the customer and sector stores. The
// cache writes are at-most-once, non-blocking side effects of a successful
// forward: they are never retried and their failure never fails the request.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/metrics"
	"github.com/farmbridge/agrigate/internal/upstream"
)

// Forwarder is the slice of the upstream client the ingestion handlers need.
type Forwarder interface {
	Forward(ctx context.Context, path string, body []byte) (upstream.Response, error)
}

// categorySpec ties a category to its upstream path and id extraction rule.
type categorySpec struct {
	category cache.Category
	path     string
	// listKey names the array whose elements each carry a customerId.
	// Empty means the id sits at the payload's top level (agtech).
	listKey string
}

var specs = map[cache.Category]categorySpec{
	cache.CategoryDemographics: {cache.CategoryDemographics, upstream.PathDemographics, "demographics"},
	cache.CategoryAssets:       {cache.CategoryAssets, upstream.PathAssets, "asset_info"},
	cache.CategoryAgtech:       {cache.CategoryAgtech, upstream.PathAgtech, ""},
	cache.CategoryPsychometric: {cache.CategoryPsychometric, upstream.PathPsychometric, "psychometric_info"},
}

// Handler serves the four ingestion routes plus the sector lookup.
type Handler struct {
	logger    *slog.Logger
	forwarder Forwarder
	customers cache.CustomerStore
	sectors   cache.SectorStore
	metrics   *metrics.Recorder
}

// NewHandler wires the ingestion routes to their collaborators.
func NewHandler(logger *slog.Logger, forwarder Forwarder, customers cache.CustomerStore, sectors cache.SectorStore, recorder *metrics.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger.With(slog.String("agent", "ingest")),
		forwarder: forwarder,
		customers: customers,
		sectors:   sectors,
		metrics:   recorder,
	}
}

// Category returns the POST handler for one ingestion category.
func (h *Handler) Category(category cache.Category) http.HandlerFunc {
	spec := specs[category]
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveCategory(w, r, spec)
	}
}

func (h *Handler) serveCategory(w http.ResponseWriter, r *http.Request, spec categorySpec) {
	start := time.Now()

	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		h.metrics.ObserveIngest(string(spec.category), metrics.OutcomeInvalid, http.StatusMethodNotAllowed, time.Since(start))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "unreadable request body")
		h.metrics.ObserveIngest(string(spec.category), metrics.OutcomeInvalid, http.StatusBadRequest, time.Since(start))
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		h.metrics.ObserveIngest(string(spec.category), metrics.OutcomeInvalid, http.StatusBadRequest, time.Since(start))
		return
	}

	customerIds := extractCustomerIds(payload, spec.listKey)

	resp, err := h.forwarder.Forward(r.Context(), spec.path, body)
	if err != nil {
		h.logger.Error("upstream forward failed",
			slog.String("category", string(spec.category)),
			slog.Any("error", err))
		writeMessage(w, http.StatusInternalServerError, "upstream request failed")
		h.metrics.ObserveIngest(string(spec.category), metrics.OutcomeError, http.StatusInternalServerError, time.Since(start))
		return
	}

	if resp.OK() {
		h.cacheAccepted(r.Context(), spec, customerIds, body, payload)
	}

	relay(w, resp)
	outcome := metrics.OutcomeRelayed
	if !resp.OK() {
		outcome = metrics.OutcomeRejected
	}
	h.metrics.ObserveIngest(string(spec.category), outcome, resp.Status, time.Since(start))
}

// cacheAccepted performs the best-effort store writes after the upstream
// accepted the payload. A payload with no parseable customer id skips caching
// silently; the upstream call already succeeded and remains the source of truth.
func (h *Handler) cacheAccepted(ctx context.Context, spec categorySpec, customerIds []string, body []byte, payload map[string]any) {
	if len(customerIds) == 0 {
		h.metrics.ObserveCacheWrite("customers", metrics.CacheResultSkipped)
		return
	}
	for _, id := range customerIds {
		if err := h.customers.SetRecord(ctx, id, spec.category, body); err != nil {
			h.logger.Warn("customer cache write failed",
				slog.String("customer_id", id),
				slog.String("category", string(spec.category)),
				slog.Any("error", err))
			h.metrics.ObserveCacheWrite("customers", metrics.CacheResultError)
			continue
		}
		h.metrics.ObserveCacheWrite("customers", metrics.CacheResultStored)
	}

	if spec.category != cache.CategoryAgtech {
		return
	}
	sectors := DeriveSectors(payload)
	for _, id := range customerIds {
		if err := h.sectors.SetSectors(ctx, id, sectors); err != nil {
			h.logger.Warn("sector cache write failed",
				slog.String("customer_id", id),
				slog.Any("error", err))
			h.metrics.ObserveCacheWrite("sectors", metrics.CacheResultError)
			continue
		}
		h.metrics.ObserveCacheWrite("sectors", metrics.CacheResultStored)
	}
}

// Sectors serves GET /agtech_safe?customerId=ID from the sector store.
func (h *Handler) Sectors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		customerId := strings.TrimSpace(r.URL.Query().Get("customerId"))
		if customerId == "" {
			writeMessage(w, http.StatusBadRequest, "customerId is required")
			h.metrics.ObserveLookup("sectors", metrics.OutcomeInvalid, http.StatusBadRequest, time.Since(start))
			return
		}

		sectors, err := h.sectors.GetSectors(r.Context(), customerId)
		if err != nil {
			h.logger.Error("sector lookup failed",
				slog.String("customer_id", customerId),
				slog.Any("error", err))
			writeMessage(w, http.StatusInternalServerError, "sector lookup failed")
			h.metrics.ObserveLookup("sectors", metrics.OutcomeError, http.StatusInternalServerError, time.Since(start))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"customerId": customerId,
			"sectors":    sectors,
		})
		h.metrics.ObserveLookup("sectors", metrics.OutcomeServed, http.StatusOK, time.Since(start))
	}
}

// extractCustomerIds collects trimmed, deduplicated customer ids from the
// payload: one top-level id when listKey is empty, else one per list element.
// Order of first appearance is preserved for deterministic cache writes.
func extractCustomerIds(payload map[string]any, listKey string) []string {
	if listKey == "" {
		if id, ok := payload["customerId"].(string); ok {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				return []string{trimmed}
			}
		}
		return nil
	}

	items, ok := payload[listKey].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := entry["customerId"].(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		ids = append(ids, trimmed)
	}
	return ids
}

// relay copies the upstream status and body to the caller unchanged. An empty
// upstream body becomes a minimal acknowledgment so callers always receive JSON.
func relay(w http.ResponseWriter, resp upstream.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 {
		_, _ = w.Write([]byte(`{"ok":true}`))
		return
	}
	_, _ = w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
