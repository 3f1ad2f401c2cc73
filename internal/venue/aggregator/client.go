// Package aggregator implements the venue A adapter (spec.md §4.2): an
// aggregator-style swap API reached over HTTP/2 with API-key rotation,
// adapted from the teacher's Jupiter Metis client.
package aggregator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

// SOLMint is the wrapped-SOL mint address used as the base token on Solana.
const SOLMint = "So11111111111111111111111111111111111111112"

// Client talks to the aggregator's quote+swap HTTP API.
type Client struct {
	baseURL     string
	slippageBps int
	pool        *httpClientPool
	apiKeys     []string
	keyIdx      atomic.Uint32
	maxLamports uint64
}

// httpClientPool round-robins across a small set of HTTP/2-enabled clients,
// the same pooling trick the teacher used to spread load across connections.
type httpClientPool struct {
	clients []*http.Client
	mu      sync.Mutex
	idx     uint32
}

func newHTTPClientPool(size int, timeout time.Duration) *httpClientPool {
	pool := &httpClientPool{clients: make([]*http.Client, size)}
	for i := 0; i < size; i++ {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		http2.ConfigureTransport(transport)
		pool.clients[i] = &http.Client{Transport: transport, Timeout: timeout}
	}
	return pool
}

func (p *httpClientPool) get() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	client := p.clients[p.idx%uint32(len(p.clients))]
	p.idx++
	return client
}

// NewClient builds an aggregator client. apiKey may be empty for the public endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration, slippageBps int) *Client {
	keys := []string{apiKey}
	if apiKey == "" {
		keys = []string{""}
	} else if strings.Contains(apiKey, ",") {
		keys = strings.Split(apiKey, ",")
	}
	return &Client{
		baseURL:     baseURL,
		slippageBps: slippageBps,
		pool:        newHTTPClientPool(4, timeout),
		apiKeys:     keys,
		maxLamports: 1_250_000,
	}
}

func (c *Client) nextAPIKey() string {
	idx := c.keyIdx.Add(1) % uint32(len(c.apiKeys))
	return c.apiKeys[idx]
}

// QuoteResponse is the opaque route plan spec.md §4.2 describes.
type QuoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
	SlippageBps          int    `json:"slippageBps"`
}

// SwapResponse carries the unsigned transaction and its validity window.
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

// BuildResult is the common `(tx_bytes, meta)` shape both adapters return.
type BuildResult struct {
	TxBytes              []byte
	OutAmount            uint64
	PriceImpactPct       float64
	LastValidBlockHeight uint64
}

// GetQuote fetches a route for amountIn of inputMint -> outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (*QuoteResponse, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amountIn, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.nextAPIKey(); key != "" {
		req.Header.Set("x-api-key", key)
	}

	start := time.Now()
	resp, err := c.pool.get().Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote failed (%d): %s", resp.StatusCode, string(body))
	}

	var quote QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	log.Debug().Dur("latency", time.Since(start)).Str("outAmount", quote.OutAmount).Msg("aggregator quote")
	return &quote, nil
}

type swapRequest struct {
	QuoteResponse            *QuoteResponse `json:"quoteResponse"`
	UserPublicKey            string         `json:"userPublicKey"`
	WrapAndUnwrapSol         bool           `json:"wrapAndUnwrapSol"`
	UseSharedAccounts        bool           `json:"useSharedAccounts"`
	DynamicComputeUnitLimit  bool           `json:"dynamicComputeUnitLimit"`
	AsLegacyTransaction      bool           `json:"asLegacyTransaction"`
	PrioritizationFeeLamports uint64        `json:"prioritizationFeeLamports"`
}

func (c *Client) getSwapTransaction(ctx context.Context, quote *QuoteResponse, userPubkey string, priorityFeeLamports uint64) (*SwapResponse, error) {
	reqBody := swapRequest{
		QuoteResponse:             quote,
		UserPublicKey:             userPubkey,
		WrapAndUnwrapSol:          true,
		UseSharedAccounts:         true,
		DynamicComputeUnitLimit:   true,
		AsLegacyTransaction:       false,
		PrioritizationFeeLamports: min(priorityFeeLamports, c.maxLamports),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := c.nextAPIKey(); key != "" {
		req.Header.Set("x-api-key", key)
	}

	resp, err := c.pool.get().Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("swap failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var swapResp SwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&swapResp); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	return &swapResp, nil
}

// BuildBuy quotes baseMint->tokenMint and returns an unsigned swap transaction.
// Quote and swap are issued sequentially (the swap needs the quote's route
// plan); callers that want the blockhash fetch concurrent with this call
// should launch it in a separate goroutine, per spec.md §4.2.
func (c *Client) BuildBuy(ctx context.Context, tokenMint, userPubkey string, baseAmount uint64, slippageBps int, priorityFeeLamports uint64) (*BuildResult, error) {
	return c.build(ctx, SOLMint, tokenMint, userPubkey, baseAmount, slippageBps, priorityFeeLamports)
}

// BuildSell quotes tokenMint->baseMint and returns an unsigned swap transaction.
func (c *Client) BuildSell(ctx context.Context, tokenMint, userPubkey string, tokenAmount uint64, slippageBps int, priorityFeeLamports uint64) (*BuildResult, error) {
	return c.build(ctx, tokenMint, SOLMint, userPubkey, tokenAmount, slippageBps, priorityFeeLamports)
}

func (c *Client) build(ctx context.Context, inputMint, outputMint, userPubkey string, amountIn uint64, slippageBps int, priorityFeeLamports uint64) (*BuildResult, error) {
	quote, err := c.GetQuote(ctx, inputMint, outputMint, amountIn, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	swap, err := c.getSwapTransaction(ctx, quote, userPubkey, priorityFeeLamports)
	if err != nil {
		return nil, fmt.Errorf("get swap transaction: %w", err)
	}

	txBytes, err := decodeBase64Tx(swap.SwapTransaction)
	if err != nil {
		return nil, err
	}

	outAmount, _ := strconv.ParseUint(quote.OutAmount, 10, 64)
	priceImpact, _ := strconv.ParseFloat(quote.PriceImpactPct, 64)

	return &BuildResult{
		TxBytes:              txBytes,
		OutAmount:            outAmount,
		PriceImpactPct:       priceImpact,
		LastValidBlockHeight: swap.LastValidBlockHeight,
	}, nil
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func decodeBase64Tx(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	return raw, nil
}
