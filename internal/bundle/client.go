// Package bundle implements the bundle submitter (C3, spec.md §4.3): a
// Jito-style block-engine client that posts base58-encoded transactions as
// a JSON-RPC bundle and polls their confirmation status. Grounded on
// original_source's jito client and written in the teacher's RPCClient idiom.
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// tipAccounts is a well-known rotation of Jito tip accounts; TipAccount
// returns one at random. Submit does not pick a tip account and adds no tip
// transfer to the bundle.
var tipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4bVmkzdtrnjk7QVksmMsr",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// Status is the provider-agnostic bundle confirmation state, per spec.md §4.3.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessed  Status = "Processed"
	StatusConfirmed  Status = "Confirmed"
	StatusFinalized  Status = "Finalized"
	StatusFailed     Status = "Failed"
	StatusUnknown    Status = "Unknown"
)

// Client submits signed transactions to a block-engine bundle endpoint.
type Client struct {
	endpointURL string
	httpClient  *http.Client
}

// NewClient builds a bundle client with the 10 s venue request timeout
// spec.md §5 budgets for bundle submission.
func NewClient(endpointURL string) *Client {
	return &Client{
		endpointURL: endpointURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// TipAccount returns one of the well-known tip accounts at random.
func TipAccount() string {
	return tipAccounts[rand.Intn(len(tipAccounts))]
}

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int        `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sendBundleResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  string    `json:"result"`
	Error   *rpcError `json:"error,omitempty"`
}

// Submit posts a single signed transaction as a one-transaction bundle and
// returns the provider-assigned bundle ID.
func (c *Client) Submit(ctx context.Context, signedTx []byte) (string, error) {
	txBase58 := base58.Encode(signedTx)

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params:  [][]string{{txBase58}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL+"/api/v1/bundles", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create bundle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("bundle http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read bundle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bundle submission failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var bundleResp sendBundleResponse
	if err := json.Unmarshal(respBody, &bundleResp); err != nil {
		return "", fmt.Errorf("decode bundle response: %w", err)
	}
	if bundleResp.Error != nil {
		return "", fmt.Errorf("bundle error %d: %s", bundleResp.Error.Code, bundleResp.Error.Message)
	}
	if bundleResp.Result == "" {
		return "", fmt.Errorf("bundle response missing result id")
	}

	log.Info().Str("bundleId", bundleResp.Result).Dur("latency", time.Since(start)).Msg("bundle submitted")
	return bundleResp.Result, nil
}

type bundleStatusResponse struct {
	Result struct {
		Value []struct {
			ConfirmationStatus string `json:"confirmation_status"`
		} `json:"value"`
	} `json:"result"`
}

// Status maps the provider's bundle-status response to the common enum.
func (c *Client) Status(ctx context.Context, bundleID string) (Status, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getBundleStatuses",
		Params:  [][]string{{bundleID}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return StatusUnknown, fmt.Errorf("marshal status request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL+"/api/v1/bundles", bytes.NewReader(body))
	if err != nil {
		return StatusUnknown, fmt.Errorf("create status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return StatusUnknown, fmt.Errorf("status http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return StatusUnknown, fmt.Errorf("get bundle status failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var statusResp bundleStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return StatusUnknown, fmt.Errorf("decode status response: %w", err)
	}

	if len(statusResp.Result.Value) == 0 {
		return StatusPending, nil
	}

	switch statusResp.Result.Value[0].ConfirmationStatus {
	case "processed":
		return StatusProcessed, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "finalized":
		return StatusFinalized, nil
	default:
		return StatusUnknown, nil
	}
}
