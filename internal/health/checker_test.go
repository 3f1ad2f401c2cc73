package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCheckRPCHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, nil)
	status := c.checkRPC()
	if !status.Healthy || status.Name != "rpc" {
		t.Fatalf("checkRPC() = %+v, want healthy", status)
	}
}

func TestCheckRPCUnhealthyOnUnreachableURL(t *testing.T) {
	c := NewChecker("http://127.0.0.1:1", nil)
	status := c.checkRPC()
	if status.Healthy {
		t.Fatal("expected an unreachable RPC URL to report unhealthy")
	}
}

func TestCheckQueueUnhealthyOnUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	c := NewChecker("http://unused.invalid", client)
	status := c.checkQueue(t.Context())
	if status.Healthy {
		t.Fatal("expected an unreachable Redis endpoint to report unhealthy")
	}
}

func TestAllHealthyReflectsLatestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	c := NewChecker(srv.URL, client)
	c.check(t.Context())

	if c.AllHealthy() {
		t.Fatal("expected AllHealthy() to be false when the queue check fails")
	}
	if len(c.Statuses()) != 2 {
		t.Fatalf("Statuses() len = %d, want 2", len(c.Statuses()))
	}
}
