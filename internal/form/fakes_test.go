package form

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"visakal-form/internal/domain"
)

const testSchemaJSON = `{
  "country_id": "thailand",
  "country_name": {"en": "Thailand", "he": "תאילנד"},
  "submit_button_text": {"en": "Continue", "he": "המשך"},
  "fields": [
    {"name": "name", "label": {"en": "Name", "he": "שם"}, "field_type": "string", "required": true},
    {"name": "email", "label": {"en": "Email", "he": "אימייל"}, "field_type": "string"},
    {"name": "age", "label": {"en": "Age", "he": "גיל"}, "field_type": "number", "default_value": "30"},
    {"name": "travel_date", "label": {"en": "Travel date", "he": "תאריך"}, "field_type": "date", "min_date": "today"},
    {"name": "purpose", "label": {"en": "Purpose", "he": "מטרה"}, "field_type": "select",
     "options": [{"value": "tourism", "label": {"en": "Tourism", "he": "תיירות"}}, {"value": "business", "label": {"en": "Business", "he": "עסקים"}}]},
    {"name": "passport", "label": {"en": "Passport", "he": "דרכון"}, "field_type": "document", "accepted_formats": ["pdf"], "max_size_mb": 1},
    {"name": "photo", "label": {"en": "Photo", "he": "תמונה"}, "field_type": "photo", "auto_copy": true}
  ]
}`

func testSchema(t *testing.T) *domain.Schema {
	t.Helper()
	var s domain.Schema
	require.NoError(t, json.Unmarshal([]byte(testSchemaJSON), &s))
	return &s
}

type fakeValidator struct {
	mu     sync.Mutex
	result *domain.ValidationResult
	err    error
	calls  [][]domain.Record
	lang   domain.Language
}

func (f *fakeValidator) ValidateFormData(_ context.Context, _ string, records []domain.Record, lang domain.Language) (*domain.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, records)
	f.lang = lang
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &domain.ValidationResult{Valid: true}, nil
	}
	return f.result, nil
}

type fakeCreator struct {
	mu    sync.Mutex
	err   error
	calls []domain.CreateApplicationRequest
}

func (f *fakeCreator) CreateApplication(_ context.Context, req domain.CreateApplicationRequest) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Application{ID: "app-1", CountryID: req.CountryID, Status: domain.StatusPendingPayment}, nil
}

// fakeStorage blocks uploads on gate when it is set.
type fakeStorage struct {
	mu        sync.Mutex
	gate      chan struct{}
	started   chan struct{}
	uploadErr error
	deleteErr error
	uploads   []domain.FileUpload
	deletes   []string
}

func (f *fakeStorage) UploadFile(_ context.Context, file domain.FileUpload) (*domain.UploadedFile, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, file)
	gate, started, err := f.gate, f.started, f.uploadErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &domain.UploadedFile{
		URL:           "https://files.test/" + file.BeneficiaryID + "/abc_" + file.Filename,
		FieldName:     file.FieldName,
		BeneficiaryID: file.BeneficiaryID,
		Filename:      file.Filename,
	}, nil
}

func (f *fakeStorage) DeleteFile(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, url)
	return f.deleteErr
}

func (f *fakeStorage) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

var errBackend = errors.New("backend unavailable")

func fixedNow() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

func newTestOrchestrator(t *testing.T, v *fakeValidator, c *fakeCreator) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Config{Schema: testSchema(t), Validator: v, Creator: c, Now: fixedNow})
	require.NoError(t, err)
	return o
}
