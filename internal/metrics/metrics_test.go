package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveIngest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveIngest("agtech_safe", OutcomeRelayed, 200, 250*time.Millisecond)

	families := gather(t, rec, "agrigate_ingest_requests_total", "agrigate_ingest_request_duration_seconds")

	counter := findMetric(t, families["agrigate_ingest_requests_total"], map[string]string{
		"category":    "agtech_safe",
		"outcome":     "relayed",
		"status_code": "200",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for ingest requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["agrigate_ingest_request_duration_seconds"], map[string]string{
		"category": "agtech_safe",
		"outcome":  "relayed",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for ingest latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveLookup(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveLookup("score", OutcomeServed, 200, 10*time.Millisecond)
	rec.ObserveLookup("describe", OutcomeInvalid, 400, 1*time.Millisecond)

	families := gather(t, rec, "agrigate_lookup_requests_total")

	served := findMetric(t, families["agrigate_lookup_requests_total"], map[string]string{
		"kind":        "score",
		"outcome":     "served",
		"status_code": "200",
	})
	if got := served.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected served counter 1, got %v", got)
	}

	invalid := findMetric(t, families["agrigate_lookup_requests_total"], map[string]string{
		"kind":        "describe",
		"outcome":     "invalid",
		"status_code": "400",
	})
	if got := invalid.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected invalid counter 1, got %v", got)
	}
}

func TestRecorderObserveCacheWrite(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheWrite("customers", CacheResultStored)
	rec.ObserveCacheWrite("sectors", CacheResultError)

	families := gather(t, rec, "agrigate_cache_writes_total")

	stored := findMetric(t, families["agrigate_cache_writes_total"], map[string]string{
		"store":  "customers",
		"result": "stored",
	})
	if got := stored.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected stored counter 1, got %v", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveIngest("assets", OutcomeError, 0, time.Millisecond)
	rec.ObserveLookup("sectors", OutcomeServed, 200, time.Millisecond)
	rec.ObserveCacheWrite("customers", CacheResultSkipped)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder handler, got %d", rr.Code)
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
