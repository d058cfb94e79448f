// Package visaapi is the resty client of the visa application backend: form schemas,
// validation, file storage, applications, pricing and payment endpoints.
package visaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"visakal-form/internal/domain"
)

// ErrUnreachable wraps transport failures (no HTTP response at all).
var ErrUnreachable = errors.New("visa API unreachable")

// APIError non-2xx response. Message is taken from the body's detail, then message field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("visa API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports a 404 from the visa API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// TokenSource supplies the bearer token for the current request.
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) string

func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

type Client struct {
	httpClient *resty.Client
	baseURL    string
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient builds the client. No retries are configured: a failed call surfaces once and
// the user repeats the action.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = TokenFunc(func(context.Context) string { return "" })
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{httpClient: httpClient, baseURL: baseURL, tokens: tokens, logger: logger}
}

func (c *Client) request(ctx context.Context, authenticated bool) *resty.Request {
	req := c.httpClient.R().SetContext(ctx)
	if authenticated {
		if tok := c.tokens.Token(ctx); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	return req
}

// send executes req and maps failures to ErrUnreachable / *APIError.
func (c *Client) send(req *resty.Request, method, path string, out any) error {
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("Failed to call visa API",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: cannot connect to backend at %s: %v", ErrUnreachable, c.baseURL, err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: errorMessage(resp.Body(), resp.Status())}
		c.logger.Warn("Visa API returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("msg", apiErr.Message),
		)
		return apiErr
	}
	return nil
}

func errorMessage(body []byte, status string) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
				return s
			}
			return string(payload.Detail)
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if status == "" {
		return "An error occurred"
	}
	return status
}

// ---- form schema / validation ----

func (c *Client) FetchFormSchema(ctx context.Context, countryID string, lang domain.Language) (*domain.Schema, error) {
	if countryID == "" {
		return nil, errors.New("country id is required")
	}
	var schema domain.Schema
	req := c.request(ctx, true).
		SetPathParam("country", countryID).
		SetQueryParam("language", string(lang))
	if err := c.send(req, http.MethodGet, "/api/form-schema/{country}", &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func (c *Client) ValidateFormData(ctx context.Context, countryID string, records []domain.Record, lang domain.Language) (*domain.ValidationResult, error) {
	if countryID == "" {
		return nil, errors.New("country id is required")
	}
	var res domain.ValidationResult
	req := c.request(ctx, true).
		SetPathParam("country", countryID).
		SetQueryParam("language", string(lang)).
		SetBody(records)
	if err := c.send(req, http.MethodPost, "/api/validate/{country}", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ---- file storage ----

func (c *Client) UploadFile(ctx context.Context, file domain.FileUpload) (*domain.UploadedFile, error) {
	var out domain.UploadedFile
	req := c.request(ctx, true).
		SetQueryParams(map[string]string{
			"field_name":     file.FieldName,
			"beneficiary_id": file.BeneficiaryID,
		}).
		SetMultipartField("file", file.Filename, file.ContentType, bytes.NewReader(file.Content))
	if err := c.send(req, http.MethodPost, "/api/upload-file", &out); err != nil {
		return nil, err
	}
	c.logger.Info("File uploaded",
		zap.String("field", file.FieldName),
		zap.String("beneficiary_id", file.BeneficiaryID),
		zap.Int("bytes", len(file.Content)),
	)
	return &out, nil
}

func (c *Client) DeleteFile(ctx context.Context, url string) error {
	req := c.request(ctx, true).SetQueryParam("file_url", url)
	return c.send(req, http.MethodDelete, "/api/delete-file", nil)
}

// ---- applications ----

func (c *Client) CreateApplication(ctx context.Context, in domain.CreateApplicationRequest) (*domain.Application, error) {
	var app domain.Application
	if err := c.send(c.request(ctx, true).SetBody(in), http.MethodPost, "/api/applications", &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) ListApplications(ctx context.Context) ([]domain.Application, error) {
	var apps []domain.Application
	if err := c.send(c.request(ctx, true), http.MethodGet, "/api/applications", &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	var app domain.Application
	req := c.request(ctx, true).SetPathParam("id", id)
	if err := c.send(req, http.MethodGet, "/api/applications/{id}", &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, id, status string) (*domain.Application, error) {
	var app domain.Application
	req := c.request(ctx, true).
		SetPathParam("id", id).
		SetBody(map[string]string{"status": status})
	if err := c.send(req, http.MethodPatch, "/api/applications/{id}/status", &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) UpdateApplicationPricing(ctx context.Context, id, pricingID string) (*domain.Application, error) {
	var app domain.Application
	req := c.request(ctx, true).
		SetPathParam("id", id).
		SetBody(map[string]string{"pricing_id": pricingID})
	if err := c.send(req, http.MethodPatch, "/api/applications/{id}/pricing", &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ---- countries / user ----

// FetchCountries is unauthenticated.
func (c *Client) FetchCountries(ctx context.Context) (*domain.CountriesResponse, error) {
	var out domain.CountriesResponse
	if err := c.send(c.request(ctx, false), http.MethodGet, "/api/countries", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.send(c.request(ctx, true), http.MethodGet, "/api/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- pricing ----

func (c *Client) ListPricing(ctx context.Context, countryID string) ([]domain.Pricing, error) {
	var out []domain.Pricing
	req := c.request(ctx, true).SetPathParam("country", countryID)
	if err := c.send(req, http.MethodGet, "/api/pricing/country/{country}", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAllPricing(ctx context.Context) ([]domain.Pricing, error) {
	var out []domain.Pricing
	if err := c.send(c.request(ctx, true), http.MethodGet, "/api/pricing", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePricing(ctx context.Context, in domain.CreatePricingRequest) (*domain.Pricing, error) {
	var out domain.Pricing
	if err := c.send(c.request(ctx, true).SetBody(in), http.MethodPost, "/api/pricing", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePricing(ctx context.Context, id string, in domain.UpdatePricingRequest) (*domain.Pricing, error) {
	var out domain.Pricing
	req := c.request(ctx, true).SetPathParam("id", id).SetBody(in)
	if err := c.send(req, http.MethodPut, "/api/pricing/{id}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePricing(ctx context.Context, id string) error {
	req := c.request(ctx, true).SetPathParam("id", id)
	return c.send(req, http.MethodDelete, "/api/pricing/{id}", nil)
}

// ---- payment ----

type PaymentConfig struct {
	PayMeAvailable bool `json:"payme_available"`
}

type CreatePaymentRequest struct {
	RequestID   string   `json:"request_id"`
	AmountILS   *float64 `json:"amount_ils,omitempty"`
	AmountUSD   *float64 `json:"amount_usd,omitempty"`
	SuccessURL  string   `json:"success_url"`
	CancelURL   string   `json:"cancel_url"`
	Description string   `json:"description,omitempty"`
}

type CreatePaymentResponse struct {
	PaymentURL string `json:"payment_url"`
	Reference  string `json:"reference"`
}

func (c *Client) GetPaymentConfig(ctx context.Context) (*PaymentConfig, error) {
	var out PaymentConfig
	if err := c.send(c.request(ctx, true), http.MethodGet, "/api/payment/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExchangeRate returns ILS per 1 USD as published by the backend.
func (c *Client) GetExchangeRate(ctx context.Context) (float64, error) {
	var out struct {
		Rate float64 `json:"rate"`
	}
	if err := c.send(c.request(ctx, true), http.MethodGet, "/api/payment/exchange-rate", &out); err != nil {
		return 0, err
	}
	return out.Rate, nil
}

func (c *Client) CreatePayment(ctx context.Context, in CreatePaymentRequest) (*CreatePaymentResponse, error) {
	var out CreatePaymentResponse
	if err := c.send(c.request(ctx, true).SetBody(in), http.MethodPost, "/api/payment/create", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
