// Package coingecko provides a client for the CoinGecko API coin catalog
// and market snapshot endpoints.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
)

const marketsPerPage = 250

// ClientConfig holds tunables for the HTTP layer.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client provides access to the CoinGecko API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	config     ClientConfig
}

// NewClient creates a new CoinGecko client.
func NewClient(apiURL string, timeout time.Duration, config ClientConfig) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelayBase <= 0 {
		config.RetryDelayBase = time.Second
	}
	return &Client{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}
}

type coinListEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type coinMarketEntry struct {
	ID        string   `json:"id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	MarketCap *float64 `json:"market_cap"`
}

// CoinsList fetches the bare coin catalog without market data.
func (c *Client) CoinsList(ctx context.Context) ([]models.Coin, error) {
	var entries []coinListEntry
	if err := c.getJSON(ctx, c.apiURL+"/coins/list", &entries); err != nil {
		return nil, fmt.Errorf("failed to fetch coin list: %w", err)
	}

	coins := make([]models.Coin, 0, len(entries))
	for _, e := range entries {
		coin := models.Coin{
			ID:     e.ID,
			Symbol: strings.ToLower(e.Symbol),
			Name:   strings.ToLower(e.Name),
		}
		if err := coin.Validate(); err != nil {
			continue
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// CoinsMarkets fetches the market snapshot ordered by market cap,
// paginated until limit coins are collected or the API runs out.
func (c *Client) CoinsMarkets(ctx context.Context, vsCurrency string, limit int) ([]models.Coin, error) {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if limit <= 0 {
		limit = 1000
	}

	var coins []models.Coin
	for page := 1; len(coins) < limit; page++ {
		q := url.Values{}
		q.Set("vs_currency", vsCurrency)
		q.Set("order", "market_cap_desc")
		q.Set("per_page", fmt.Sprintf("%d", marketsPerPage))
		q.Set("page", fmt.Sprintf("%d", page))

		var entries []coinMarketEntry
		if err := c.getJSON(ctx, c.apiURL+"/coins/markets?"+q.Encode(), &entries); err != nil {
			return nil, fmt.Errorf("failed to fetch coin markets page %d: %w", page, err)
		}
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			coin := models.Coin{
				ID:     e.ID,
				Symbol: strings.ToLower(e.Symbol),
				Name:   strings.ToLower(e.Name),
			}
			if e.MarketCap != nil {
				mc := int64(math.Round(*e.MarketCap))
				coin.MarketCap = &mc
			}
			if err := coin.Validate(); err != nil {
				continue
			}
			coins = append(coins, coin)
			if len(coins) == limit {
				break
			}
		}
	}
	return coins, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelayBase * time.Duration(i+1)):
			}
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelayBase * time.Duration(i+1)):
			}
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("request failed: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
