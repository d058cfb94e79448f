package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/events"
	"visakal-form/internal/export"
	"visakal-form/internal/metrics"
	"visakal-form/internal/payment"
	"visakal-form/internal/visaapi"
)

var (
	ErrPricingNotFound   = errors.New("pricing plan not found")
	ErrPaymentTarget     = errors.New("session_id or request_id is required")
	ErrPricingIDRequired = errors.New("pricing_id is required")
)

// ApplicationsAPI is the part of the visa backend behind countries, pricing,
// applications history and payment.
type ApplicationsAPI interface {
	payment.Backend
	FetchCountries(ctx context.Context) (*domain.CountriesResponse, error)
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	ListApplications(ctx context.Context) ([]domain.Application, error)
	ListPricing(ctx context.Context, countryID string) ([]domain.Pricing, error)
	UpdateApplicationPricing(ctx context.Context, id, pricingID string) (*domain.Application, error)
	GetPaymentConfig(ctx context.Context) (*visaapi.PaymentConfig, error)
}

// USDRate ILS per 1 USD, never failing.
type USDRate interface {
	USDToILS(ctx context.Context) float64
}

// ApplicationService everything after the form: plan selection, payment, history.
type ApplicationService struct {
	api      ApplicationsAPI
	forms    *FormService
	payments *payment.Executor
	rates    USDRate
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewApplicationService(api ApplicationsAPI, forms *FormService, payments *payment.Executor, rates USDRate, pub events.Publisher, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &ApplicationService{
		api:      api,
		forms:    forms,
		payments: payments,
		rates:    rates,
		events:   pub,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ApplicationService) publish(ctx context.Context, e events.Event) {
	e.At = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		metrics.RecordPublishFailure(string(e.Type))
		s.logger.Warn("Failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func (s *ApplicationService) Countries(ctx context.Context) (*domain.CountriesResponse, error) {
	out, err := s.api.FetchCountries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch countries: %w", err)
	}
	return out, nil
}

func (s *ApplicationService) Pricing(ctx context.Context, countryID string) ([]domain.Pricing, error) {
	if countryID == "" {
		return nil, ErrCountryRequired
	}
	plans, err := s.api.ListPricing(ctx, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing: %w", err)
	}
	return plans, nil
}

// SelectPricing attaches a pricing plan to an application.
func (s *ApplicationService) SelectPricing(ctx context.Context, applicationID, pricingID string) (*domain.Application, error) {
	if pricingID == "" {
		return nil, ErrPricingIDRequired
	}
	app, err := s.api.UpdateApplicationPricing(ctx, applicationID, pricingID)
	if err != nil {
		if visaapi.IsNotFound(err) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to select pricing: %w", err)
	}
	s.publish(ctx, events.Event{
		Type:      events.PricingSelected,
		CountryID: app.CountryID,
		RequestID: applicationID,
		PricingID: pricingID,
	})
	return app, nil
}

func (s *ApplicationService) Applications(ctx context.Context) ([]domain.Application, error) {
	apps, err := s.api.ListApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// ExportApplications the user's applications as an .xlsx workbook.
func (s *ApplicationService) ExportApplications(ctx context.Context, lang domain.Language) ([]byte, error) {
	apps, err := s.Applications(ctx)
	if err != nil {
		return nil, err
	}
	data, err := export.Applications(apps, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to export applications: %w", err)
	}
	return data, nil
}

type PaymentRequest struct {
	ClientID string
	// SessionID pays for a form session (submitted or not); RequestID for an existing application.
	SessionID string
	RequestID string
	PricingID string
	Currency  payment.Currency
	Language  domain.Language
	Agent     payment.AgentSource
}

// ExecutePayment resolves beneficiaries, price, gateway availability and rate, then runs
// the payment step. Gateway failures come back as an error outcome.
func (s *ApplicationService) ExecutePayment(ctx context.Context, req PaymentRequest) (*payment.Result, error) {
	p := payment.Params{
		RequestID: req.RequestID,
		Language:  req.Language,
		Currency:  req.Currency,
		Agent:     req.Agent,
	}

	switch {
	case req.SessionID != "":
		sess, err := s.forms.session(ctx, req.ClientID, req.SessionID, req.Language)
		if err != nil {
			return nil, err
		}
		schema := sess.orch.Schema()
		p.CountryID = schema.CountryID
		p.CountryName = schema.CountryName
		p.Records = sess.orch.Records()
		if p.RequestID == "" {
			p.RequestID = sess.orch.ApplicationID()
		}
		if p.RequestID == "" {
			p.RequestID = sess.orch.RequestID()
		}
	case req.RequestID != "":
		app, err := s.api.GetApplication(ctx, req.RequestID)
		if err != nil {
			if visaapi.IsNotFound(err) {
				return nil, ErrApplicationNotFound
			}
			return nil, fmt.Errorf("failed to load application %s: %w", req.RequestID, err)
		}
		p.CountryID = app.CountryID
		p.CountryName = app.CountryName
		p.Records = app.Records()
	default:
		return nil, ErrPaymentTarget
	}

	if req.PricingID != "" {
		price, err := s.price(ctx, p.CountryID, req.PricingID)
		if err != nil {
			return nil, err
		}
		p.Price = price
	}

	if cfg, err := s.api.GetPaymentConfig(ctx); err != nil {
		s.logger.Warn("Payment config unavailable, assuming no backend gateway", zap.Error(err))
	} else {
		p.PayMeAvailable = cfg.PayMeAvailable
	}

	if req.Currency == payment.CurrencyUSD && s.rates != nil {
		p.ExchangeRate = s.rates.USDToILS(ctx)
	}

	res := s.payments.Execute(ctx, p)
	metrics.RecordPayment(string(res.Outcome))

	amount, currency := res.AmountILS, "ILS"
	if req.Currency == payment.CurrencyUSD {
		amount, currency = res.AmountUSD, "USD"
	}
	s.publish(ctx, events.Event{
		Type:          events.PaymentExecuted,
		SessionID:     req.SessionID,
		CountryID:     p.CountryID,
		RequestID:     firstNonEmpty(res.ApplicationID, p.RequestID),
		Beneficiaries: len(p.Records),
		PricingID:     req.PricingID,
		Amount:        amount,
		Currency:      currency,
		Outcome:       string(res.Outcome),
	})
	return &res, nil
}

func (s *ApplicationService) price(ctx context.Context, countryID, pricingID string) (*payment.Price, error) {
	plans, err := s.api.ListPricing(ctx, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing: %w", err)
	}
	for _, pl := range plans {
		if pl.ID == pricingID {
			return &payment.Price{PriceILS: pl.PriceILS, PriceUSD: pl.PriceUSD}, nil
		}
	}
	return nil, ErrPricingNotFound
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
