package clob

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

func testCreds() Credentials {
	return Credentials{
		APIKey:     "key-1",
		Secret:     base64.URLEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "pass",
		Address:    "0xabc",
	}
}

func TestNewBrokerRequiresCredentials(t *testing.T) {
	_, err := NewBroker("", Credentials{})
	require.Error(t, err)
}

func TestPlaceMarketOrderBuy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.NotEmpty(t, r.Header.Get("POLY_TIMESTAMP"))
		w.Write([]byte(`{"success": true, "status": "matched", "makingAmount": "100", "takingAmount": "250"}`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	res, err := b.PlaceMarketOrder(context.Background(), ports.OrderRequest{
		TokenID: "tok-yes",
		Side:    domain.TradeBuy,
		SizeUSD: 100,
	})
	require.NoError(t, err)
	require.True(t, res.Filled)
	assert.Equal(t, 100.0, res.FilledSize, "USDC spent")
	assert.Equal(t, 0.4, res.AvgPrice, "100 USDC for 250 shares")
}

func TestPlaceMarketOrderUnfilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": false, "status": "unmatched", "errorMsg": "no liquidity"}`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	res, err := b.PlaceMarketOrder(context.Background(), ports.OrderRequest{
		TokenID: "tok-yes",
		Side:    domain.TradeBuy,
		SizeUSD: 50,
	})
	require.NoError(t, err, "an unfilled order is not an error")
	assert.False(t, res.Filled)
}

func TestPlaceMarketOrderSell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": true, "status": "matched", "makingAmount": "200", "takingAmount": "90"}`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	res, err := b.PlaceMarketOrder(context.Background(), ports.OrderRequest{
		TokenID: "tok-yes",
		Side:    domain.TradeSell,
		Shares:  200,
	})
	require.NoError(t, err)
	require.True(t, res.Filled)
	assert.Equal(t, 200.0, res.FilledSize, "shares sold")
	assert.Equal(t, 0.45, res.AvgPrice, "90 USDC for 200 shares")
}

func TestBalanceMicroUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COLLATERAL", r.URL.Query().Get("asset_type"))
		w.Write([]byte(`{"balance": "1250000000"}`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	bal, err := b.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1250.0, bal)
}

func TestPositionsSkipsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"asset_id": "tok-a", "size": "150.5"},
			{"asset_id": "tok-b", "size": "0"},
			{"asset_id": "tok-c", "size": "garbage"}
		]`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	held, err := b.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, 150.5, held["tok-a"])
}

func TestClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid signature"}`))
	}))
	defer srv.Close()

	b, err := NewBroker(srv.URL, testCreds())
	require.NoError(t, err)

	_, err = b.Balance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, calls, "4xx is fatal, not retried")
}
