package blockchain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rpcResponseServer(t *testing.T, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		raw, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("marshal result: %v", err)
		}
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGetLatestBlockhash(t *testing.T) {
	srv := rpcResponseServer(t, map[string]interface{}{
		"value": map[string]interface{}{
			"blockhash":            "Eet5c6ex9RQ3YoQ3XfhpSmvgxTDjiFMJFZbreTJqKr6D",
			"lastValidBlockHeight": 12345,
		},
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.URL, "")
	result, err := client.GetLatestBlockhash(t.Context())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if result.Value.Blockhash != "Eet5c6ex9RQ3YoQ3XfhpSmvgxTDjiFMJFZbreTJqKr6D" {
		t.Errorf("blockhash = %q", result.Value.Blockhash)
	}
	if result.Value.LastValidBlockHeight != 12345 {
		t.Errorf("lastValidBlockHeight = %d, want 12345", result.Value.LastValidBlockHeight)
	}
}

func TestGetBalance(t *testing.T) {
	srv := rpcResponseServer(t, map[string]interface{}{"value": 1_500_000_000})
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.URL, "")
	balance, err := client.GetBalance(t.Context(), "some-pubkey")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 1_500_000_000 {
		t.Errorf("balance = %d, want 1500000000", balance)
	}
}

func TestSendTransaction(t *testing.T) {
	srv := rpcResponseServer(t, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp")
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.URL, "")
	sig, err := client.SendTransaction(t.Context(), "base64tx", true)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp" {
		t.Errorf("signature = %q", sig)
	}
}

func TestGetTokenAccountsByOwnerFiltersByMint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		json.NewDecoder(r.Body).Decode(&req)

		raw, _ := json.Marshal(map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"pubkey": "TokenAccountAddr111111111111111111111111111",
					"account": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"mint": "MintAddr11111111111111111111111111111111111",
									"tokenAmount": map[string]interface{}{
										"amount":   "42000",
										"decimals": 6,
									},
								},
							},
						},
					},
				},
			},
		})
		json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: raw})
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.URL, "")
	accounts, err := client.GetTokenAccountsByOwner(t.Context(), "owner", "MintAddr11111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetTokenAccountsByOwner: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("len(accounts) = %d, want 1", len(accounts))
	}
	if accounts[0].Amount != 42000 {
		t.Errorf("amount = %d, want 42000", accounts[0].Amount)
	}
}

func TestCircuitBreakerSkipsPrimaryAfterFiveFailures(t *testing.T) {
	var primaryHits int
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	fallback := rpcResponseServer(t, map[string]interface{}{"value": 7})
	defer fallback.Close()

	client := NewRPCClient(failing.URL, fallback.URL, "")

	// call() already falls back to the secondary URL on any single failure,
	// so every one of these succeeds via the fallback; what we're checking
	// is that five consecutive primary failures trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := client.GetBalance(t.Context(), "pubkey"); err != nil {
			t.Fatalf("attempt %d: GetBalance: %v", i, err)
		}
	}

	if !client.isCircuitOpen() {
		t.Fatal("expected circuit breaker to be open after 5 consecutive primary failures")
	}
	hitsBeforeOpen := primaryHits

	balance, err := client.GetBalance(t.Context(), "pubkey")
	if err != nil {
		t.Fatalf("GetBalance with open circuit: %v", err)
	}
	if balance != 7 {
		t.Errorf("balance = %d, want 7 (from fallback)", balance)
	}
	if primaryHits != hitsBeforeOpen {
		t.Errorf("primary was hit again after the circuit opened: %d -> %d", hitsBeforeOpen, primaryHits)
	}
}
