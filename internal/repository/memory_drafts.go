package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"visakal-form/internal/domain"
)

// MemoryDraftsRepository keeps drafts in process when the DB is disabled.
type MemoryDraftsRepository struct {
	mu     sync.RWMutex
	drafts map[string]Draft
	now    func() time.Time
}

func NewMemoryDraftsRepository() *MemoryDraftsRepository {
	return &MemoryDraftsRepository{drafts: map[string]Draft{}, now: time.Now}
}

var _ DraftsRepository = (*MemoryDraftsRepository)(nil)

func copyDraft(d Draft) Draft {
	d.Beneficiaries = domain.CloneRecords(d.Beneficiaries)
	d.AutoCopy = append([]string(nil), d.AutoCopy...)
	return d
}

func (r *MemoryDraftsRepository) SaveDraft(_ context.Context, d *Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[d.ID] = copyDraft(*d)
	return nil
}

func (r *MemoryDraftsRepository) GetDraft(_ context.Context, id string) (*Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drafts[id]
	if !ok || !d.ExpiresAt.After(r.now()) {
		return nil, ErrDraftNotFound
	}
	out := copyDraft(d)
	return &out, nil
}

func (r *MemoryDraftsRepository) ListDrafts(_ context.Context, clientID string) ([]Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var out []Draft
	for _, d := range r.drafts {
		if d.ClientID == clientID && d.ExpiresAt.After(now) {
			out = append(out, copyDraft(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryDraftsRepository) DeleteDraft(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, id)
	return nil
}

func (r *MemoryDraftsRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.drafts {
		if !d.ExpiresAt.After(now) {
			delete(r.drafts, id)
			n++
		}
	}
	return n, nil
}
