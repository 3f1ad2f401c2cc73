package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"

	"memecoin-agent/internal/health"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
	"memecoin-agent/internal/position"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rpcSrv.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { redisClient.Close() })

	checker := health.NewChecker(rpcSrv.URL, redisClient)
	positions := position.NewRegistry()
	tradeMetrics := metrics.New()

	return New("127.0.0.1", 0, checker, positions, tradeMetrics)
}

func TestHandlePositionsReturnsOpenPositions(t *testing.T) {
	s := newTestServer(t)
	s.positions.Add(&model.Position{TokenMint: "mintA"})

	req, _ := http.NewRequest(http.MethodGet, "/positions", nil)
	resp, err := s.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Count     int               `json:"count"`
		Positions []model.Position `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Positions) != 1 || body.Positions[0].TokenMint != "mintA" {
		t.Fatalf("body = %+v, want one position for mintA", body)
	}
}

func TestHandleMetricsReturnsSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.metrics.RecordTrade(true, 1, 2, 3)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalTrades != 1 || snap.SuccessTrades != 1 {
		t.Fatalf("snap = %+v, want one successful trade", snap)
	}
}

func TestHandleHealthReportsUnhealthyBeforeFirstCheck(t *testing.T) {
	s := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before any check has run", resp.StatusCode)
	}
}
