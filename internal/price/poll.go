package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// pollProvider is one HTTP price source tried in preference order.
type pollProvider struct {
	name string
	url  func(tokenMint string) string
	parse func([]byte) (float64, error)
}

// PollingSource queries an ordered list of HTTP providers for a token's
// price when the streaming cache has nothing for it, per spec.md §4.4.
type PollingSource struct {
	httpClient *http.Client
	providers  []pollProvider
}

// NewPollingSource builds the default provider order: a public aggregator
// price endpoint first, a branded bonding-curve API second.
func NewPollingSource(aggregatorBaseURL, curveBaseURL string) *PollingSource {
	return &PollingSource{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		providers: []pollProvider{
			{
				name: "aggregator",
				url:  func(mint string) string { return aggregatorBaseURL + "/price?ids=" + mint },
				parse: parseAggregatorPrice,
			},
			{
				name: "curve",
				url:  func(mint string) string { return curveBaseURL + "/coins/" + mint },
				parse: parseCurvePrice,
			},
		},
	}
}

// Get tries each provider in order and returns the first successful price.
func (p *PollingSource) Get(ctx context.Context, tokenMint string) (float64, error) {
	var lastErr error
	for _, provider := range p.providers {
		price, err := p.fetch(ctx, provider, tokenMint)
		if err != nil {
			lastErr = err
			continue
		}
		return price, nil
	}
	return 0, fmt.Errorf("all polling providers failed: %w", lastErr)
}

func (p *PollingSource) fetch(ctx context.Context, provider pollProvider, tokenMint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.url(tokenMint), nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", provider.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: http status %d", provider.name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", provider.name, err)
	}

	price, err := provider.parse(body)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", provider.name, err)
	}
	return price, nil
}

func parseAggregatorPrice(body []byte) (float64, error) {
	var resp struct {
		Data map[string]struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	for _, entry := range resp.Data {
		var price float64
		if _, err := fmt.Sscanf(entry.Price, "%f", &price); err != nil {
			return 0, err
		}
		return price, nil
	}
	return 0, fmt.Errorf("no price entry in response")
}

func parseCurvePrice(body []byte) (float64, error) {
	var resp struct {
		USDMarketCap float64 `json:"usd_market_cap"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	if resp.USDMarketCap <= 0 {
		return 0, fmt.Errorf("no market cap in response")
	}
	return resp.USDMarketCap / FixedSupply, nil
}
