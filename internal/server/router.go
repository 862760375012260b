package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/ingest"
	"github.com/farmbridge/agrigate/internal/score"
)

// RouterDeps collects the handlers the router dispatches to. Metrics may be
// nil when the exposition endpoint is not wanted.
type RouterDeps struct {
	Logger            *slog.Logger
	Ingest            *ingest.Handler
	Score             *score.Handler
	Metrics           http.Handler
	CorrelationHeader string
}

// NewRouter builds the gateway's route table. The agtech path is method-split:
// POST ingests a submission, GET answers the sector lookup.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /demographics", deps.Ingest.Category(cache.CategoryDemographics))
	mux.Handle("POST /assets", deps.Ingest.Category(cache.CategoryAssets))
	mux.Handle("POST /agtech_safe", deps.Ingest.Category(cache.CategoryAgtech))
	mux.Handle("GET /agtech_safe", deps.Ingest.Sectors())
	mux.Handle("POST /psychometric_info", deps.Ingest.Category(cache.CategoryPsychometric))

	mux.Handle("POST /score", deps.Score.Score())
	mux.Handle("POST /score/describe", deps.Score.Describe())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	header := strings.TrimSpace(deps.CorrelationHeader)
	if header == "" {
		header = "X-Request-ID"
	}
	return withRequestID(header, withAccessLog(deps.Logger, header, mux))
}

// withRequestID honors an inbound correlation id and mints one otherwise, so
// every response carries an id the caller can quote back.
func withRequestID(header string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(header))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(header, id)
		}
		w.Header().Set(header, id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func withAccessLog(logger *slog.Logger, header string, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	access := logger.With(slog.String("agent", "http"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		access.Info("request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.String("request_id", r.Header.Get(header)),
			slog.Duration("duration", time.Since(start)))
	})
}
