package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

const (
	defaultBase = "https://gamma-api.polymarket.com"
	marketsPath = "/markets"

	// 60% of the documented 300/10s limit.
	requestsPerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client fetches markets from the Gamma REST API with rate limiting and
// retries. It implements ports.MarketProvider and, through its price
// cache, ports.PriceSource.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	limit   int

	mu     sync.RWMutex
	prices map[string]float64
}

// NewClient creates a Client. An empty base uses the production URL;
// limit caps markets fetched per cycle (default 200).
func NewClient(base string, limit int) *Client {
	if base == "" {
		base = defaultBase
	}
	if limit <= 0 {
		limit = 200
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(requestsPerSec, 5),
		limit:   limit,
		prices:  make(map[string]float64),
	}
}

// gammaMarket is the wire shape. Outcome names, prices and token ids come
// back as JSON-encoded string arrays inside string fields.
type gammaMarket struct {
	ID            string  `json:"id"`
	Question      string  `json:"question"`
	Slug          string  `json:"slug"`
	Category      string  `json:"category"`
	Outcomes      string  `json:"outcomes"`
	OutcomePrices string  `json:"outcomePrices"`
	ClobTokenIDs  string  `json:"clobTokenIds"`
	Liquidity     string  `json:"liquidity"`
	Volume24hr    float64 `json:"volume24hr"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
}

// FetchMarkets returns active markets with populated outcomes, refreshing
// the last-price cache as a side effect. Malformed rows are skipped.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	url := fmt.Sprintf("%s%s?active=true&closed=false&limit=%d&order=liquidity&ascending=false",
		c.base, marketsPath, c.limit)

	var raw []gammaMarket
	if err := c.get(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	markets := make([]domain.Market, 0, len(raw))
	skipped := 0
	for _, gm := range raw {
		m, err := mapMarket(gm)
		if err != nil {
			skipped++
			slog.Debug("gamma: skipping market", "id", gm.ID, "err", err)
			continue
		}
		markets = append(markets, m)
	}

	c.mu.Lock()
	for _, m := range markets {
		for _, o := range m.Outcomes {
			if o.TokenID != "" && o.Price > 0 {
				c.prices[o.TokenID] = o.Price
			}
		}
	}
	c.mu.Unlock()

	slog.Debug("gamma: fetched markets", "total", len(raw), "usable", len(markets), "skipped", skipped)
	return markets, nil
}

// LastPrice returns the most recent known price for a tradable asset.
func (c *Client) LastPrice(assetID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[assetID]
	return p, ok
}

// UpdatePrice lets the live feed push fresher prices into the cache.
func (c *Client) UpdatePrice(assetID string, price float64) {
	if price <= 0 || price >= 1 {
		return
	}
	c.mu.Lock()
	c.prices[assetID] = price
	c.mu.Unlock()
}

func mapMarket(gm gammaMarket) (domain.Market, error) {
	var names, priceStrs, tokenIDs []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &names); err != nil {
		return domain.Market{}, fmt.Errorf("parse outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &priceStrs); err != nil {
		return domain.Market{}, fmt.Errorf("parse outcome prices: %w", err)
	}
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Market{}, fmt.Errorf("parse token ids: %w", err)
	}
	if len(names) < 2 || len(names) != len(priceStrs) || len(names) != len(tokenIDs) {
		return domain.Market{}, fmt.Errorf("outcome arrays mismatch: %d names, %d prices, %d tokens",
			len(names), len(priceStrs), len(tokenIDs))
	}

	outcomes := make([]domain.Outcome, len(names))
	for i := range names {
		price, err := strconv.ParseFloat(priceStrs[i], 64)
		if err != nil {
			return domain.Market{}, fmt.Errorf("parse price %q: %w", priceStrs[i], err)
		}
		outcomes[i] = domain.Outcome{Name: names[i], TokenID: tokenIDs[i], Price: price}
	}

	liquidity, _ := strconv.ParseFloat(gm.Liquidity, 64)

	var endDate time.Time
	if gm.EndDate != "" {
		endDate, _ = time.Parse(time.RFC3339, gm.EndDate)
	}

	return domain.Market{
		ID:        gm.ID,
		Question:  gm.Question,
		Slug:      gm.Slug,
		Category:  gm.Category,
		Outcomes:  outcomes,
		Liquidity: liquidity,
		Volume24h: gm.Volume24hr,
		EndDate:   endDate,
		Active:    gm.Active,
		Closed:    gm.Closed,
	}, nil
}

// get performs a rate-limited GET with exponential backoff on 429/5xx.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("gamma: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
