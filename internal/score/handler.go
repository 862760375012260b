package score

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/describe"
	"github.com/farmbridge/agrigate/internal/metrics"
)

// Handler serves the score and description lookups. Both read only cached
// state: a process restart legitimately empties the caches, so absence always
// degrades to a minimal answer rather than an error.
type Handler struct {
	logger    *slog.Logger
	provider  Provider
	customers cache.CustomerStore
	sectors   cache.SectorStore
	generator describe.Generator
	formatter *describe.Formatter
	metrics   *metrics.Recorder
}

// NewHandler wires the lookup routes. generator may be nil; the local
// formatter then serves every description.
func NewHandler(logger *slog.Logger, provider Provider, customers cache.CustomerStore, sectors cache.SectorStore, generator describe.Generator, formatter *describe.Formatter, recorder *metrics.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger.With(slog.String("agent", "score")),
		provider:  provider,
		customers: customers,
		sectors:   sectors,
		generator: generator,
		formatter: formatter,
		metrics:   recorder,
	}
}

type lookupRequest struct {
	CustomerID string `json:"customerId"`
}

// readCustomerId decodes the request body and trims the id, reporting whether
// a usable id was found.
func readCustomerId(r *http.Request) (string, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return "", false
	}
	var req lookupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", false
	}
	id := strings.TrimSpace(req.CustomerID)
	return id, id != ""
}

// Score serves POST /score.
func (h *Handler) Score() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.Method != http.MethodPost {
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			h.metrics.ObserveLookup("score", metrics.OutcomeInvalid, http.StatusMethodNotAllowed, time.Since(start))
			return
		}
		customerId, ok := readCustomerId(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid customerId")
			h.metrics.ObserveLookup("score", metrics.OutcomeInvalid, http.StatusBadRequest, time.Since(start))
			return
		}

		sectors, err := h.sectors.GetSectors(r.Context(), customerId)
		if err != nil {
			h.logger.Error("sector read failed", slog.String("customer_id", customerId), slog.Any("error", err))
			writeMessage(w, http.StatusInternalServerError, "Internal error")
			h.metrics.ObserveLookup("score", metrics.OutcomeError, http.StatusInternalServerError, time.Since(start))
			return
		}

		entries, err := h.provider.Scores(r.Context(), customerId, sectors)
		if err != nil {
			h.logger.Error("score provider failed", slog.String("customer_id", customerId), slog.Any("error", err))
			writeMessage(w, http.StatusInternalServerError, "Internal error")
			h.metrics.ObserveLookup("score", metrics.OutcomeError, http.StatusInternalServerError, time.Since(start))
			return
		}

		writeJSON(w, http.StatusOK, entries)
		h.metrics.ObserveLookup("score", metrics.OutcomeServed, http.StatusOK, time.Since(start))
	}
}

// Describe serves POST /score/describe.
func (h *Handler) Describe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.Method != http.MethodPost {
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			h.metrics.ObserveLookup("describe", metrics.OutcomeInvalid, http.StatusMethodNotAllowed, time.Since(start))
			return
		}
		customerId, ok := readCustomerId(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid customerId")
			h.metrics.ObserveLookup("describe", metrics.OutcomeInvalid, http.StatusBadRequest, time.Since(start))
			return
		}

		facts := h.assembleFacts(r, customerId)
		description := h.render(r, facts)

		writeJSON(w, http.StatusOK, map[string]string{
			"customerId":  customerId,
			"description": description,
		})
		h.metrics.ObserveLookup("describe", metrics.OutcomeServed, http.StatusOK, time.Since(start))
	}
}

// assembleFacts gathers cached state for the description. Read failures are
// logged and treated as absence: the response degrades, it does not fail.
func (h *Handler) assembleFacts(r *http.Request, customerId string) describe.Facts {
	sectors, err := h.sectors.GetSectors(r.Context(), customerId)
	if err != nil {
		h.logger.Warn("sector read failed", slog.String("customer_id", customerId), slog.Any("error", err))
		sectors = nil
	}

	var payload map[string]any
	raw, ok, err := h.customers.GetCategory(r.Context(), customerId, cache.CategoryAgtech)
	if err != nil {
		h.logger.Warn("record read failed", slog.String("customer_id", customerId), slog.Any("error", err))
	} else if ok {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.logger.Warn("cached agtech payload unreadable", slog.String("customer_id", customerId), slog.Any("error", err))
			payload = nil
		}
	}

	return describe.BuildFacts(customerId, sectors, payload)
}

// render tries the generation backend first and falls back to the local
// formatter, then to an empty description. Errors never escape.
func (h *Handler) render(r *http.Request, facts describe.Facts) string {
	if h.generator != nil {
		text, err := h.generator.Generate(r.Context(), facts)
		if err == nil {
			return text
		}
		h.logger.Warn("description generation failed, using local fallback",
			slog.String("customer_id", facts.CustomerID),
			slog.Any("error", err))
	}
	if h.formatter == nil {
		return ""
	}
	text, err := h.formatter.Format(facts)
	if err != nil {
		h.logger.Warn("local description render failed",
			slog.String("customer_id", facts.CustomerID),
			slog.Any("error", err))
		return ""
	}
	return text
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
