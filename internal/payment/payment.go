// Package payment runs the payment step after a submission: amount computation, gateway
// selection and the simulated completion used when no gateway is configured.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/i18n"
	"visakal-form/internal/visaapi"
)

type Currency string

const (
	CurrencyILS Currency = "ils"
	CurrencyUSD Currency = "usd"
)

// ParseCurrency defaults to ILS.
func ParseCurrency(s string) Currency {
	if Currency(strings.ToLower(s)) == CurrencyUSD {
		return CurrencyUSD
	}
	return CurrencyILS
}

type Outcome string

const (
	OutcomeRedirect      Outcome = "redirect"
	OutcomeSuccess       Outcome = "success"
	OutcomeError         Outcome = "error"
	OutcomeNotConfigured Outcome = "not_configured"
)

// Per-beneficiary prices used when no plan was selected.
const (
	DefaultPriceILS = 180.0
	DefaultPriceUSD = 50.0
)

// Price one selected pricing plan
type Price struct {
	PriceILS float64 `json:"price_ils"`
	PriceUSD float64 `json:"price_usd"`
}

// Amounts returns the totals for count beneficiaries. When paying in USD with a positive
// rate (ILS per 1 USD) the USD amount is converted from the ILS total.
func Amounts(count int, price *Price, currency Currency, rate float64) (ils, usd float64) {
	n := float64(count)
	if price != nil {
		ils = price.PriceILS * n
	} else {
		ils = DefaultPriceILS * n
	}
	switch {
	case currency == CurrencyUSD && rate > 0:
		usd = ils / rate
	case price != nil:
		usd = price.PriceUSD * n
	default:
		usd = DefaultPriceUSD * n
	}
	return ils, usd
}

// Backend is the part of the visa API the payment step calls.
type Backend interface {
	CreatePayment(ctx context.Context, in visaapi.CreatePaymentRequest) (*visaapi.CreatePaymentResponse, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) (*domain.Application, error)
	CreateApplication(ctx context.Context, in domain.CreateApplicationRequest) (*domain.Application, error)
}

// AgentSource is the agent attribution of the paying client.
type AgentSource interface {
	Get() string
	Clear(ctx context.Context) error
}

type Params struct {
	RequestID      string
	CountryID      string
	Records        []domain.Record
	CountryName    domain.TranslatedText
	Price          *Price
	PayMeAvailable bool
	Language       domain.Language
	Currency       Currency
	// ExchangeRate ILS per 1 USD; 0 when unknown
	ExchangeRate float64
	Agent        AgentSource
}

type Result struct {
	Outcome       Outcome               `json:"outcome"`
	PaymentURL    string                `json:"payment_url,omitempty"`
	ApplicationID string                `json:"application_id,omitempty"`
	AmountILS     float64               `json:"amount_ils"`
	AmountUSD     float64               `json:"amount_usd"`
	Message       domain.TranslatedText `json:"message"`
}

type Executor struct {
	backend   Backend
	direct    *PayMeClient
	publicURL string
	logger    *zap.Logger
}

// NewExecutor builds the executor. direct may be nil; it is used when the backend gateway
// is unavailable but direct PayMe credentials are configured.
func NewExecutor(backend Backend, direct *PayMeClient, publicURL string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{backend: backend, direct: direct, publicURL: strings.TrimRight(publicURL, "/"), logger: logger}
}

func (e *Executor) returnURL(countryID, requestID, status string) string {
	q := url.Values{}
	q.Set("status", status)
	q.Set("request_id", requestID)
	return fmt.Sprintf("%s/payment/%s?%s", e.publicURL, url.PathEscape(countryID), q.Encode())
}

// Execute runs the payment step. Failures are reported through the outcome, never as error.
func (e *Executor) Execute(ctx context.Context, p Params) Result {
	ils, usd := Amounts(len(p.Records), p.Price, p.Currency, p.ExchangeRate)
	res := Result{AmountILS: ils, AmountUSD: usd}

	fail := func(msg string, err error) Result {
		e.logger.Warn(msg, zap.String("request_id", p.RequestID), zap.String("country_id", p.CountryID), zap.Error(err))
		res.Outcome = OutcomeError
		res.Message = i18n.Text(i18n.PaymentError)
		return res
	}

	description := "Visa application - " + p.CountryName.Get(p.Language)
	successURL := e.returnURL(p.CountryID, p.RequestID, "success")
	cancelURL := e.returnURL(p.CountryID, p.RequestID, "cancel")

	if p.PayMeAvailable {
		if p.RequestID == "" {
			res.Outcome = OutcomeNotConfigured
			res.Message = i18n.Text(i18n.PaymentNotConfigured)
			return res
		}
		in := visaapi.CreatePaymentRequest{
			RequestID:   p.RequestID,
			SuccessURL:  successURL,
			CancelURL:   cancelURL,
			Description: description,
		}
		if p.Currency == CurrencyUSD {
			in.AmountUSD = &usd
		} else {
			in.AmountILS = &ils
		}
		out, err := e.backend.CreatePayment(ctx, in)
		if err != nil {
			return fail("create payment failed", err)
		}
		res.Outcome = OutcomeRedirect
		res.PaymentURL = out.PaymentURL
		res.ApplicationID = p.RequestID
		return res
	}

	if e.direct != nil && e.direct.Available() && p.RequestID != "" {
		amount, cur := ils, "ILS"
		if p.Currency == CurrencyUSD {
			amount, cur = usd, "USD"
		}
		payURL, err := e.direct.CreatePayment(ctx, PayMeParams{
			Amount:      amount,
			Currency:    cur,
			Reference:   p.RequestID,
			SuccessURL:  successURL,
			CancelURL:   cancelURL,
			Description: description,
		})
		if err != nil {
			return fail("direct PayMe payment failed", err)
		}
		res.Outcome = OutcomeRedirect
		res.PaymentURL = payURL
		res.ApplicationID = p.RequestID
		return res
	}

	// no gateway: complete without charging
	if p.RequestID != "" {
		if _, err := e.backend.UpdateApplicationStatus(ctx, p.RequestID, domain.StatusPaymentReceived); err != nil {
			return fail("mark payment received failed", err)
		}
		res.ApplicationID = p.RequestID
	} else {
		agentID := ""
		if p.Agent != nil {
			agentID = p.Agent.Get()
		}
		app, err := e.backend.CreateApplication(ctx, domain.CreateApplicationRequest{
			CountryID:     p.CountryID,
			Beneficiaries: p.Records,
			AgentID:       agentID,
		})
		if err != nil {
			return fail("create application failed", err)
		}
		res.ApplicationID = app.ID
		if agentID != "" {
			if err := p.Agent.Clear(ctx); err != nil {
				e.logger.Warn("Failed to clear agent id", zap.Error(err))
			}
		}
	}
	res.Outcome = OutcomeSuccess
	res.Message = i18n.Text(i18n.PaymentSuccess)
	return res
}
