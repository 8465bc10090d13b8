package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atlas-desktop/signal-engine/internal/api"
	"github.com/atlas-desktop/signal-engine/internal/config"
	"github.com/atlas-desktop/signal-engine/internal/depthanalyzer"
	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*api.Server, *config.Manager, *depthanalyzer.Analyzer) {
	t.Helper()
	logger := zap.NewNop()
	configMgr := config.NewManager(nil, 0, logger)
	analyzer := depthanalyzer.NewAnalyzer()
	srv := api.NewServer(logger, api.Config{Addr: ":0"}, configMgr, analyzer)
	return srv, configMgr, analyzer
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, decoded
}

func TestSchemaAndDefaults(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodGet, "/strategies/orderbook_skew/defaults", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body)
	}
	data := body["data"].(map[string]interface{})
	if data["buy_threshold"].(float64) != 1.2 {
		t.Errorf("buy_threshold default = %v, want 1.2", data["buy_threshold"])
	}

	rec, _ = doRequest(t, srv, http.MethodGet, "/strategies/not_a_strategy/defaults", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestConfigGetFallsThroughToDefaultsWithoutStore(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodGet, "/strategies/orderbook_skew/config", "")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("get failed: %d %v", rec.Code, body)
	}
	data := body["data"].(map[string]interface{})
	if data["source"] != "default" {
		t.Errorf("source = %v, want default", data["source"])
	}
}

func TestConfigSetWithoutStoreReturnsTransientError(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// When the document store is unreachable, writes return a
	// transient-error status rather than silently succeeding or crashing.
	setBody := `{"parameters":{"buy_threshold":1.5},"changed_by":"alice","reason":"tune it"}`
	rec, body := doRequest(t, srv, http.MethodPost, "/strategies/orderbook_skew/config", setBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body)
	}
}

func TestConfigSetMissingChangedByRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	setBody := `{"parameters":{"buy_threshold":1.5}}`
	rec, body := doRequest(t, srv, http.MethodPost, "/strategies/orderbook_skew/config", setBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body)
	}
}

func TestConfigValidationError(t *testing.T) {
	srv, _, _ := newTestServer(t)

	setBody := `{"parameters":{"buy_threshold":"not-a-number"},"changed_by":"alice"}`
	rec, body := doRequest(t, srv, http.MethodPost, "/strategies/orderbook_skew/config", setBody)
	if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 422 or 503", rec.Code)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body)
	}
}

func TestMetricsDepthNotFoundUntilSeen(t *testing.T) {
	srv, _, analyzer := newTestServer(t)

	rec, _ := doRequest(t, srv, http.MethodGet, "/metrics/depth/BTCUSDT", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any depth event", rec.Code)
	}

	depth, err := eventmodel.ParseDepth("btcusdt@depth20@100ms", []byte(`{
		"lastUpdateId": 1,
		"bids": [["50000","1"]],
		"asks": [["50001","1"]]
	}`))
	if err != nil {
		t.Fatalf("parse depth: %v", err)
	}
	analyzer.OnDepth(depth)

	rec, body := doRequest(t, srv, http.MethodGet, "/metrics/depth/BTCUSDT", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after depth event, body=%v", rec.Code, body)
	}
}

func TestMetricsSummaryAndAll(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodGet, "/metrics/summary", "")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("summary failed: %d %v", rec.Code, body)
	}

	rec, body = doRequest(t, srv, http.MethodGet, "/metrics/all", "")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("all failed: %d %v", rec.Code, body)
	}
}

func TestCacheRefresh(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodPost, "/strategies/cache/refresh", "")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("refresh failed: %d %v", rec.Code, body)
	}
}
