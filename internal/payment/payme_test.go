package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPayMeClient_Available(t *testing.T) {
	assert.False(t, NewPayMeClient("", "m", "s", "", nil).Available())
	assert.False(t, NewPayMeClient("https://p", "", "s", "", nil).Available())
	assert.True(t, NewPayMeClient("https://p", "m", "s", "", nil).Available())

	_, err := NewPayMeClient("", "", "", "", nil).CreatePayment(context.Background(), PayMeParams{})
	assert.ErrorIs(t, err, ErrPayMeNotConfigured)
}

func TestPayMeClient_CreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-sale/", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(12345), body["sale_price"])
		assert.Equal(t, "ILS", body["currency"])
		assert.Equal(t, "req-1", body["transaction_id"])
		assert.Equal(t, "multi", body["sale_payment_method"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status_code": 0, "sale_url": "https://payme.test/sale/1"})
	}))
	defer srv.Close()

	c := NewPayMeClient(srv.URL+"/api", "merchant", "secret", "generate-sale/", zap.NewNop())
	u, err := c.CreatePayment(context.Background(), PayMeParams{Amount: 123.45, Currency: "ILS", Reference: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://payme.test/sale/1", u)
}

func TestPayMeClient_StatusCodeOneIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status_code": 1, "status_error_code": 350, "status_error_details": "bad seller"})
	}))
	defer srv.Close()

	_, err := NewPayMeClient(srv.URL, "m", "s", "", nil).CreatePayment(context.Background(), PayMeParams{Amount: 1, Currency: "USD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "350")
	assert.Contains(t, err.Error(), "bad seller")
}

func TestExecute_DirectPayMeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "USD", body["currency"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status_code": 0, "sale_url": "https://payme.test/sale/2"})
	}))
	defer srv.Close()

	b := &fakeBackend{}
	e := NewExecutor(b, NewPayMeClient(srv.URL, "m", "s", "", nil), "https://visakal.test", nil)
	res := e.Execute(context.Background(), Params{RequestID: "req-2", CountryID: "india", Records: twoRecords(), Currency: CurrencyUSD})

	assert.Equal(t, OutcomeRedirect, res.Outcome)
	assert.Equal(t, "https://payme.test/sale/2", res.PaymentURL)
	assert.Empty(t, b.statuses)
}
