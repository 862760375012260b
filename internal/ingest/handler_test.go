package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/metrics"
	"github.com/farmbridge/agrigate/internal/upstream"
	"github.com/stretchr/testify/require"
)

type fakeForwarder struct {
	resp     upstream.Response
	err      error
	gotPath  string
	gotBody  []byte
	forwards int
}

func (f *fakeForwarder) Forward(_ context.Context, path string, body []byte) (upstream.Response, error) {
	f.forwards++
	f.gotPath = path
	f.gotBody = body
	if f.err != nil {
		return upstream.Response{}, f.err
	}
	return f.resp, nil
}

func newTestHandler(forwarder Forwarder) (*Handler, *cache.Stores) {
	stores := cache.NewMemoryStores()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, forwarder, stores.Customers, stores.Sectors, metrics.NewRecorder(nil)), stores
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestAgtechForwardCachesRecordAndSectors(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200, Body: []byte(`{"accepted":true}`)}}
	handler, stores := newTestHandler(forwarder)

	body := `{"customerId":"CUST-9","latitude":9.03,"longitude":38.74,"livestock":[{"type":"cattle"}],"vegetable_production":[]}`
	rr := postJSON(t, handler.Category(cache.CategoryAgtech), body)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"accepted":true}`, rr.Body.String())
	require.Equal(t, upstream.PathAgtech, forwarder.gotPath)
	require.JSONEq(t, body, string(forwarder.gotBody))

	payload, ok, err := stores.Customers.GetCategory(context.Background(), "CUST-9", cache.CategoryAgtech)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, body, string(payload))

	sectors, err := stores.Sectors.GetSectors(context.Background(), "CUST-9")
	require.NoError(t, err)
	require.Equal(t, []cache.Sector{cache.SectorLivestock}, sectors)
}

func TestAgtechResubmissionReplacesSectors(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200}}
	handler, stores := newTestHandler(forwarder)

	first := `{"customerId":"CUST-1","livestock":[{}],"poultry":[{}]}`
	require.Equal(t, http.StatusOK, postJSON(t, handler.Category(cache.CategoryAgtech), first).Code)

	second := `{"customerId":"CUST-1","apiculture":[{}]}`
	require.Equal(t, http.StatusOK, postJSON(t, handler.Category(cache.CategoryAgtech), second).Code)

	sectors, err := stores.Sectors.GetSectors(context.Background(), "CUST-1")
	require.NoError(t, err)
	require.Equal(t, []cache.Sector{cache.SectorApiculture}, sectors)
}

func TestDemographicsCachesEachDistinctId(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 201}}
	handler, stores := newTestHandler(forwarder)

	body := `{"demographics":[
		{"customerId":"CUST-1","age":41},
		{"customerId":"CUST-2","age":28},
		{"customerId":" CUST-1 ","age":41},
		{"age":19},
		{"customerId":"   "}
	]}`
	rr := postJSON(t, handler.Category(cache.CategoryDemographics), body)
	require.Equal(t, http.StatusCreated, rr.Code)

	for _, id := range []string{"CUST-1", "CUST-2"} {
		payload, ok, err := stores.Customers.GetCategory(context.Background(), id, cache.CategoryDemographics)
		require.NoError(t, err)
		require.True(t, ok, "expected record for %s", id)
		require.JSONEq(t, body, string(payload))
	}
}

func TestMergeAcrossCategories(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200}}
	handler, stores := newTestHandler(forwarder)

	demo := `{"demographics":[{"customerId":"CUST-1"}]}`
	require.Equal(t, http.StatusOK, postJSON(t, handler.Category(cache.CategoryDemographics), demo).Code)

	assets := `{"asset_info":[{"customerId":"CUST-1","tractors":1}]}`
	require.Equal(t, http.StatusOK, postJSON(t, handler.Category(cache.CategoryAssets), assets).Code)

	record, ok, err := stores.Customers.GetRecord(context.Background(), "CUST-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, record.Categories, cache.CategoryDemographics)
	require.Contains(t, record.Categories, cache.CategoryAssets)
}

func TestUpstreamRejectionRelayedWithoutCaching(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 422, Body: []byte(`{"message":"bad payload"}`)}}
	handler, stores := newTestHandler(forwarder)

	rr := postJSON(t, handler.Category(cache.CategoryAgtech), `{"customerId":"CUST-3","livestock":[{}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"message":"bad payload"}`, rr.Body.String())

	_, ok, err := stores.Customers.GetRecord(context.Background(), "CUST-3")
	require.NoError(t, err)
	require.False(t, ok, "rejected submission must not be cached")

	sectors, err := stores.Sectors.GetSectors(context.Background(), "CUST-3")
	require.NoError(t, err)
	require.Empty(t, sectors)
}

func TestTransportFailureReturns500(t *testing.T) {
	forwarder := &fakeForwarder{err: errors.New("connection refused")}
	handler, _ := newTestHandler(forwarder)

	rr := postJSON(t, handler.Category(cache.CategoryAssets), `{"asset_info":[{"customerId":"CUST-4"}]}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "upstream request failed", body["message"])
}

func TestMissingCustomerIdStillForwards(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200}}
	handler, stores := newTestHandler(forwarder)

	rr := postJSON(t, handler.Category(cache.CategoryAgtech), `{"latitude":9.0,"livestock":[{}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, forwarder.forwards)

	// No id means no cache writes, silently.
	_, ok, err := stores.Customers.GetRecord(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidJSONRejectedBeforeForwarding(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200}}
	handler, _ := newTestHandler(forwarder)

	rr := postJSON(t, handler.Category(cache.CategoryPsychometric), `{"psychometric_info": [`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, forwarder.forwards)
}

func TestMethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(&fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.Category(cache.CategoryDemographics)(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestEmptyUpstreamBodyBecomesAck(t *testing.T) {
	forwarder := &fakeForwarder{resp: upstream.Response{Status: 200}}
	handler, _ := newTestHandler(forwarder)

	rr := postJSON(t, handler.Category(cache.CategoryAgtech), `{"customerId":"CUST-5"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestSectorsLookup(t *testing.T) {
	handler, stores := newTestHandler(&fakeForwarder{})
	require.NoError(t, stores.Sectors.SetSectors(context.Background(), "CUST-9", []cache.Sector{cache.SectorLivestock}))

	req := httptest.NewRequest(http.MethodGet, "/agtech_safe?customerId=CUST-9", nil)
	rr := httptest.NewRecorder()
	handler.Sectors()(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"customerId":"CUST-9","sectors":["Livestock"]}`, rr.Body.String())
}

func TestSectorsLookupUnknownIdIsEmptyList(t *testing.T) {
	handler, _ := newTestHandler(&fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/agtech_safe?customerId=CUST-404", nil)
	rr := httptest.NewRecorder()
	handler.Sectors()(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"customerId":"CUST-404","sectors":[]}`, rr.Body.String())
}

func TestSectorsLookupRequiresCustomerId(t *testing.T) {
	handler, _ := newTestHandler(&fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/agtech_safe?customerId=%20%20", nil)
	rr := httptest.NewRecorder()
	handler.Sectors()(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
