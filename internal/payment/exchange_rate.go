package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultUSDToILS is used whenever no live rate can be obtained.
const DefaultUSDToILS = 3.7

// RateFetcher returns ILS per 1 USD.
type RateFetcher interface {
	GetExchangeRate(ctx context.Context) (float64, error)
}

// FrankfurterClient reads the USD/ILS rate from the Frankfurter API (no key required).
type FrankfurterClient struct {
	httpClient *resty.Client
	url        string
}

func NewFrankfurterClient(url string, timeout time.Duration) *FrankfurterClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FrankfurterClient{httpClient: resty.New().SetTimeout(timeout), url: url}
}

func (c *FrankfurterClient) GetExchangeRate(ctx context.Context) (float64, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"from": "USD", "to": "ILS"}).
		Get(c.url)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("exchange rate request failed: %s", resp.Status())
	}
	ils := gjson.GetBytes(resp.Body(), "rates.ILS")
	if !ils.Exists() {
		return 0, errors.New("exchange rate response has no rates.ILS")
	}
	return ils.Float(), nil
}

// RateSource tries each fetcher in order and falls back to a fixed default.
type RateSource struct {
	fetchers []RateFetcher
	fallback float64
	logger   *zap.Logger
}

func NewRateSource(fallback float64, logger *zap.Logger, fetchers ...RateFetcher) *RateSource {
	if fallback <= 0 {
		fallback = DefaultUSDToILS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateSource{fetchers: fetchers, fallback: fallback, logger: logger}
}

// USDToILS never fails: any error or non-positive rate moves on to the next source.
func (s *RateSource) USDToILS(ctx context.Context) float64 {
	for _, f := range s.fetchers {
		rate, err := f.GetExchangeRate(ctx)
		if err != nil {
			s.logger.Debug("Exchange rate source failed", zap.Error(err))
			continue
		}
		if rate > 0 {
			return rate
		}
	}
	return s.fallback
}
