package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"visakal-form/internal/domain"
	"visakal-form/internal/events"
	"visakal-form/internal/visaapi"
)

const testSchemaJSON = `{
  "country_id": "thailand",
  "country_name": {"en": "Thailand", "he": "תאילנד"},
  "submit_button_text": {"en": "Continue", "he": "המשך"},
  "fields": [
    {"name": "name", "label": {"en": "Name", "he": "שם"}, "field_type": "string", "required": true},
    {"name": "age", "label": {"en": "Age", "he": "גיל"}, "field_type": "number", "default_value": "30"},
    {"name": "nationality", "label": {"en": "Nationality", "he": "אזרחות"}, "field_type": "string", "auto_copy": true},
    {"name": "photo", "label": {"en": "Photo", "he": "תמונה"}, "field_type": "photo"},
    {"name": "signature", "label": {"en": "Signature", "he": "חתימה"}, "field_type": "signature_pad"}
  ]
}`

// fakeAPI stands in for the visa backend.
type fakeAPI struct {
	mu sync.Mutex

	schemaCalls int
	validation  *domain.ValidationResult
	validateErr error
	validated   [][]domain.Record
	createErr   error
	created     []domain.CreateApplicationRequest
	apps        map[string]*domain.Application
	pricing     []domain.Pricing
	payMe       bool
	payments    []visaapi.CreatePaymentRequest
	statuses    map[string]string
	uploads     []domain.FileUpload
	deletes     []string
	pricingSet  map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		apps:       map[string]*domain.Application{},
		statuses:   map[string]string{},
		pricingSet: map[string]string{},
	}
}

func (f *fakeAPI) FetchFormSchema(_ context.Context, countryID string, _ domain.Language) (*domain.Schema, error) {
	f.mu.Lock()
	f.schemaCalls++
	f.mu.Unlock()
	if countryID != "thailand" {
		return nil, &visaapi.APIError{StatusCode: http.StatusNotFound, Message: "Country not found"}
	}
	var s domain.Schema
	if err := json.Unmarshal([]byte(testSchemaJSON), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *fakeAPI) ValidateFormData(_ context.Context, _ string, records []domain.Record, _ domain.Language) (*domain.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validated = append(f.validated, records)
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if f.validation != nil {
		return f.validation, nil
	}
	return &domain.ValidationResult{Valid: true}, nil
}

func (f *fakeAPI) CreateApplication(_ context.Context, req domain.CreateApplicationRequest) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	app := &domain.Application{ID: "app-" + string(rune('0'+len(f.created))), CountryID: req.CountryID, Status: domain.StatusPendingPayment}
	f.apps[app.ID] = app
	return app, nil
}

func (f *fakeAPI) UploadFile(_ context.Context, file domain.FileUpload) (*domain.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file)
	return &domain.UploadedFile{URL: "https://files.test/u_" + file.Filename, FieldName: file.FieldName, Filename: file.Filename}, nil
}

func (f *fakeAPI) DeleteFile(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, url)
	return nil
}

func (f *fakeAPI) GetApplication(_ context.Context, id string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, &visaapi.APIError{StatusCode: http.StatusNotFound, Message: "Application not found"}
	}
	return app, nil
}

func (f *fakeAPI) ListApplications(context.Context) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Application, 0, len(f.apps))
	for _, a := range f.apps {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAPI) FetchCountries(context.Context) (*domain.CountriesResponse, error) {
	return &domain.CountriesResponse{
		Available:  []domain.Country{{ID: "thailand", Name: domain.Text("Thailand", "תאילנד"), Enabled: true}},
		ComingSoon: []domain.Country{{ID: "india", Name: domain.Text("India", "הודו")}},
	}, nil
}

func (f *fakeAPI) ListPricing(_ context.Context, countryID string) ([]domain.Pricing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Pricing
	for _, p := range f.pricing {
		if p.CountryID == countryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) UpdateApplicationPricing(_ context.Context, id, pricingID string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, &visaapi.APIError{StatusCode: http.StatusNotFound, Message: "Application not found"}
	}
	f.pricingSet[id] = pricingID
	return app, nil
}

func (f *fakeAPI) GetPaymentConfig(context.Context) (*visaapi.PaymentConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &visaapi.PaymentConfig{PayMeAvailable: f.payMe}, nil
}

func (f *fakeAPI) CreatePayment(_ context.Context, in visaapi.CreatePaymentRequest) (*visaapi.CreatePaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, in)
	return &visaapi.CreatePaymentResponse{PaymentURL: "https://pay.test/checkout/" + in.RequestID}, nil
}

func (f *fakeAPI) UpdateApplicationStatus(_ context.Context, id, status string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	if app, ok := f.apps[id]; ok {
		app.Status = status
		return app, nil
	}
	return &domain.Application{ID: id, Status: status}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixedRate float64

func (r fixedRate) USDToILS(context.Context) float64 { return float64(r) }

type memAgent struct{ id string }

func (a *memAgent) Get() string                 { return a.id }
func (a *memAgent) Clear(context.Context) error { a.id = ""; return nil }

func str(t *testing.T, v domain.Value) string {
	t.Helper()
	s, ok := v.Str()
	require.True(t, ok, "value is not a string: %v", v)
	return s
}
