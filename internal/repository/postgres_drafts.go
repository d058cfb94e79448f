package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const draftsSchema = `
CREATE TABLE IF NOT EXISTS form_drafts (
	draft_id      TEXT PRIMARY KEY,
	client_id     TEXT NOT NULL,
	country_id    TEXT NOT NULL,
	request_id    TEXT,
	beneficiaries JSONB NOT NULL,
	auto_copy     JSONB NOT NULL DEFAULT '[]'::jsonb,
	active        INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_form_drafts_client ON form_drafts (client_id, updated_at DESC);
`

// PostgresDraftsRepository drafts in the form_drafts table (lib/pq)
type PostgresDraftsRepository struct {
	db *sql.DB
}

func NewPostgresDraftsRepository(db *sql.DB) *PostgresDraftsRepository {
	return &PostgresDraftsRepository{db: db}
}

var _ DraftsRepository = (*PostgresDraftsRepository)(nil)

// EnsureSchema creates the drafts table when missing.
func (r *PostgresDraftsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, draftsSchema); err != nil {
		return fmt.Errorf("failed to create form_drafts: %w", err)
	}
	return nil
}

func (r *PostgresDraftsRepository) SaveDraft(ctx context.Context, d *Draft) error {
	beneficiaries, err := json.Marshal(d.Beneficiaries)
	if err != nil {
		return fmt.Errorf("failed to encode beneficiaries: %w", err)
	}
	autoCopy := d.AutoCopy
	if autoCopy == nil {
		autoCopy = []string{}
	}
	autoCopyJSON, err := json.Marshal(autoCopy)
	if err != nil {
		return fmt.Errorf("failed to encode auto_copy: %w", err)
	}

	query := `
		INSERT INTO form_drafts (draft_id, client_id, country_id, request_id, beneficiaries, auto_copy, active, updated_at, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		ON CONFLICT (draft_id) DO UPDATE SET
			beneficiaries = EXCLUDED.beneficiaries,
			auto_copy     = EXCLUDED.auto_copy,
			active        = EXCLUDED.active,
			updated_at    = EXCLUDED.updated_at,
			expires_at    = EXCLUDED.expires_at
	`
	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.ClientID, d.CountryID, d.RequestID,
		string(beneficiaries), string(autoCopyJSON), d.Active,
		d.UpdatedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *PostgresDraftsRepository) GetDraft(ctx context.Context, id string) (*Draft, error) {
	if id == "" {
		return nil, ErrDraftNotFound
	}
	query := `
		SELECT draft_id, client_id, country_id, request_id, beneficiaries, auto_copy, active, updated_at, expires_at
		FROM form_drafts
		WHERE draft_id = $1 AND expires_at > NOW()
	`
	d, err := scanDraft(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

func (r *PostgresDraftsRepository) ListDrafts(ctx context.Context, clientID string) ([]Draft, error) {
	query := `
		SELECT draft_id, client_id, country_id, request_id, beneficiaries, auto_copy, active, updated_at, expires_at
		FROM form_drafts
		WHERE client_id = $1 AND expires_at > NOW()
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *PostgresDraftsRepository) DeleteDraft(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM form_drafts WHERE draft_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (r *PostgresDraftsRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM form_drafts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge drafts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*Draft, error) {
	var (
		d             Draft
		requestID     sql.NullString
		beneficiaries []byte
		autoCopy      []byte
	)
	if err := row.Scan(&d.ID, &d.ClientID, &d.CountryID, &requestID, &beneficiaries, &autoCopy, &d.Active, &d.UpdatedAt, &d.ExpiresAt); err != nil {
		return nil, err
	}
	if requestID.Valid {
		d.RequestID = requestID.String
	}
	if err := json.Unmarshal(beneficiaries, &d.Beneficiaries); err != nil {
		return nil, fmt.Errorf("decode beneficiaries: %w", err)
	}
	if len(autoCopy) > 0 {
		if err := json.Unmarshal(autoCopy, &d.AutoCopy); err != nil {
			return nil, fmt.Errorf("decode auto_copy: %w", err)
		}
	}
	return &d, nil
}
