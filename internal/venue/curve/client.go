// Package curve implements the venue B adapter (spec.md §4.2): a single-shot
// HTTP POST against a bonding-curve trade API that returns a raw, unsigned
// transaction. Grounded on the pump.fun trade-local contract used throughout
// the retrieval pack's Solana memecoin bots.
package curve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Pool identifies which bonding-curve program services the trade.
const Pool = "pump"

// Client posts buy/sell requests to the curve trade endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a curve adapter client with a fixed request timeout,
// per spec.md §5's 10 s venue request budget.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// tradeRequest mirrors the wire shape `{public_key, action, mint, amount,
// denominated_in_sol, slippage%, priority_fee, pool}` from spec.md §4.2.
type tradeRequest struct {
	PublicKey         string  `json:"publicKey"`
	Action            string  `json:"action"`
	Mint              string  `json:"mint"`
	Amount            string  `json:"amount"`
	DenominatedInSol  string  `json:"denominatedInSol"`
	SlippagePercent   int     `json:"slippage"`
	PriorityFeeSOL    float64 `json:"priorityFee"`
	Pool              string  `json:"pool"`
}

// BuildBuy requests a buy of baseAmountLamports worth of tokenMint, denominated
// in the base currency (SOL).
func (c *Client) BuildBuy(ctx context.Context, tokenMint, userPubkey string, baseAmountLamports uint64, slippageBps int, priorityFeeLamports uint64) ([]byte, error) {
	req := tradeRequest{
		PublicKey:        userPubkey,
		Action:           "buy",
		Mint:             tokenMint,
		Amount:           strconv.FormatFloat(lamportsToSOL(baseAmountLamports), 'f', -1, 64),
		DenominatedInSol: "true",
		SlippagePercent:  bpsToPercent(slippageBps),
		PriorityFeeSOL:   lamportsToSOL(priorityFeeLamports),
		Pool:             Pool,
	}
	return c.post(ctx, req)
}

// BuildSell requests a sell. amountPercent is the fraction of current holdings
// to sell, expressed as a string like "100%" or "80%". The spec's direct-curve
// adapter originally always requested "100%"; to support the ninja venue's
// staged scale-outs (spec.md §4.9) this adapter accepts any percentage the
// caller computes from the position's remaining balance.
func (c *Client) BuildSell(ctx context.Context, tokenMint, userPubkey string, amountPercent string, slippageBps int, priorityFeeLamports uint64) ([]byte, error) {
	req := tradeRequest{
		PublicKey:        userPubkey,
		Action:           "sell",
		Mint:             tokenMint,
		Amount:           amountPercent,
		DenominatedInSol: "false",
		SlippagePercent:  bpsToPercent(slippageBps),
		PriorityFeeSOL:   lamportsToSOL(priorityFeeLamports),
		Pool:             Pool,
	}
	return c.post(ctx, req)
}

func (c *Client) post(ctx context.Context, req tradeRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trade-local", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create trade request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trade http request: %w", err)
	}
	defer resp.Body.Close()

	txBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("curve trade failed (%d): %s", resp.StatusCode, string(txBytes))
	}

	return txBytes, nil
}

func lamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / 1e9
}

func bpsToPercent(bps int) int {
	return bps / 100
}

// FullSell is the spec's original always-100% sell amount, still used for
// non-staged exits (stop-loss, standard take-profit, and the final stage of
// a scaled exit that zeroes out the remaining balance).
const FullSell = "100%"

// PercentString formats a sell-percent for the "amount" field, e.g. 80 -> "80%".
func PercentString(percent float64) string {
	return strconv.FormatFloat(percent, 'f', -1, 64) + "%"
}
