package clob

// broker.go: authenticated CLOB trading client.
//
// Every request carries L2 auth: HMAC-SHA256 over timestamp+method+path+body
// with API credentials supplied via the environment. Wallet-level key
// derivation is a deployment concern and stays outside this process.

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

const (
	defaultBase = "https://clob.polymarket.com"

	// 60% of the documented general limit.
	requestsPerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Credentials are the API credentials for L2 auth.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
	Address    string
}

// Valid reports whether the credentials are usable.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.Secret != ""
}

// Broker implements ports.Broker against the CLOB REST API.
type Broker struct {
	http    *http.Client
	base    string
	creds   Credentials
	limiter *rate.Limiter
}

// NewBroker creates an authenticated broker client. An empty base uses
// the production URL.
func NewBroker(base string, creds Credentials) (*Broker, error) {
	if !creds.Valid() {
		return nil, fmt.Errorf("clob.NewBroker: missing API credentials")
	}
	if base == "" {
		base = defaultBase
	}
	return &Broker{
		http:    &http.Client{Timeout: 15 * time.Second},
		base:    base,
		creds:   creds,
		limiter: rate.NewLimiter(requestsPerSec, 50),
	}, nil
}

type orderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Type    string  `json:"type"` // FOK market order
	Amount  float64 `json:"amount,omitempty"`
	Shares  float64 `json:"shares,omitempty"`
}

type orderResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	ErrorMsg     string `json:"errorMsg"`
}

// PlaceMarketOrder submits a fill-or-kill market order. An unfilled order
// returns Filled=false with a nil error; only transport and auth problems
// are errors.
func (b *Broker) PlaceMarketOrder(ctx context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	body := orderRequest{
		TokenID: req.TokenID,
		Type:    "FOK",
	}
	switch req.Side {
	case domain.TradeBuy:
		body.Side = "BUY"
		body.Amount = req.SizeUSD
	case domain.TradeSell:
		body.Side = "SELL"
		body.Shares = req.Shares
	default:
		return ports.OrderResult{}, fmt.Errorf("clob.PlaceMarketOrder: unknown side %q", req.Side)
	}

	var resp orderResponse
	if err := b.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return ports.OrderResult{}, fmt.Errorf("clob.PlaceMarketOrder: %s: %w", req.TokenID, err)
	}
	if !resp.Success || strings.EqualFold(resp.Status, "unmatched") {
		return ports.OrderResult{}, nil
	}

	making, _ := strconv.ParseFloat(resp.MakingAmount, 64)
	taking, _ := strconv.ParseFloat(resp.TakingAmount, 64)
	if making <= 0 || taking <= 0 {
		return ports.OrderResult{}, nil
	}

	// For buys: making is USDC spent, taking is shares received.
	// For sells: making is shares sold, taking is USDC received.
	result := ports.OrderResult{Filled: true}
	if req.Side == domain.TradeBuy {
		result.FilledSize = making
		result.AvgPrice = making / taking
	} else {
		result.FilledSize = making
		result.AvgPrice = taking / making
	}
	return result, nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// Balance returns the available USDC balance.
func (b *Broker) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := b.do(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil, &resp); err != nil {
		return 0, fmt.Errorf("clob.Balance: %w", err)
	}
	bal, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("clob.Balance: parse %q: %w", resp.Balance, err)
	}
	// Balance is reported in micro-USDC.
	return bal / 1e6, nil
}

type positionEntry struct {
	AssetID string `json:"asset_id"`
	Size    string `json:"size"`
}

// Positions returns shares held at the broker, keyed by token id.
func (b *Broker) Positions(ctx context.Context) (map[string]float64, error) {
	var entries []positionEntry
	if err := b.do(ctx, http.MethodGet, "/positions", nil, &entries); err != nil {
		return nil, fmt.Errorf("clob.Positions: %w", err)
	}

	held := make(map[string]float64, len(entries))
	for _, e := range entries {
		size, err := strconv.ParseFloat(e.Size, 64)
		if err != nil || size <= 0 {
			continue
		}
		held[e.AssetID] = size
	}
	return held, nil
}

// authHeaders signs one request. Regenerated per attempt so the timestamp
// stays fresh.
func (b *Broker) authHeaders(method, path, body string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secret, err := base64.URLEncoding.DecodeString(b.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    b.creds.Address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    b.creds.APIKey,
		"POLY_PASSPHRASE": b.creds.Passphrase,
	}, nil
}

// do executes an authenticated request with rate limiting and retries.
func (b *Broker) do(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyStr string
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyStr = string(raw)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers, err := b.authHeaders(method, path, bodyStr)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if bodyStr != "" {
			bodyReader = strings.NewReader(bodyStr)
		}
		req, err := http.NewRequestWithContext(ctx, method, b.base+path, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := b.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			b.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries: %s", resp.StatusCode, maxRetries, respBody)
			}
			b.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("client error %d: %s", resp.StatusCode, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (b *Broker) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
