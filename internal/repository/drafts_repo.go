package repository

import (
	"context"
	"errors"
	"time"

	"visakal-form/internal/domain"
)

var ErrDraftNotFound = errors.New("draft not found")

// Draft persisted form session state
type Draft struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	CountryID     string          `json:"country_id"`
	RequestID     string          `json:"request_id,omitempty"`
	Beneficiaries []domain.Record `json:"beneficiaries"`
	AutoCopy      []string        `json:"auto_copy"`
	Active        int             `json:"active"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// DraftsRepository stores form drafts so sessions survive restarts.
type DraftsRepository interface {
	SaveDraft(ctx context.Context, d *Draft) error
	// GetDraft returns ErrDraftNotFound for unknown and expired drafts.
	GetDraft(ctx context.Context, id string) (*Draft, error)
	ListDrafts(ctx context.Context, clientID string) ([]Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
