package bundle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitReturnsBundleID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "sendBundle" {
			t.Fatalf("method = %q, want sendBundle", req.Method)
		}
		json.NewEncoder(w).Encode(sendBundleResponse{JSONRPC: "2.0", Result: "bundle-abc123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	id, err := client.Submit(t.Context(), []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "bundle-abc123" {
		t.Errorf("id = %q, want bundle-abc123", id)
	}
}

func TestSubmitPropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendBundleResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32000, Message: "bundle rejected"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.Submit(t.Context(), []byte{0x01}); err == nil {
		t.Fatal("expected an error when the provider returns an error object")
	}
}

func TestStatusMapsConfirmationStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"value":[{"confirmation_status":"finalized"}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.Status(t.Context(), "bundle-abc123")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != StatusFinalized {
		t.Errorf("status = %q, want Finalized", status)
	}
}

func TestStatusDefaultsToPendingWhenValueEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"value":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.Status(t.Context(), "bundle-abc123")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != StatusPending {
		t.Errorf("status = %q, want Pending", status)
	}
}

func TestTipAccountReturnsKnownAccount(t *testing.T) {
	account := TipAccount()
	found := false
	for _, a := range tipAccounts {
		if a == account {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("TipAccount() returned %q, not in the known set", account)
	}
}
