package visaapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/store"
)

// SchemaFetcher loads a form schema from its origin.
type SchemaFetcher interface {
	FetchFormSchema(ctx context.Context, countryID string, lang domain.Language) (*domain.Schema, error)
}

// CachedSchemaSource is a read-through KV cache in front of a SchemaFetcher.
// Cache failures are logged and bypassed, never returned.
type CachedSchemaSource struct {
	origin SchemaFetcher
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSchemaSource(origin SchemaFetcher, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedSchemaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSchemaSource{origin: origin, kv: kv, ttl: ttl, logger: logger}
}

func schemaKey(countryID string, lang domain.Language) string {
	return "form-schema:" + countryID + ":" + string(lang)
}

func (s *CachedSchemaSource) FetchFormSchema(ctx context.Context, countryID string, lang domain.Language) (*domain.Schema, error) {
	key := schemaKey(countryID, lang)
	raw, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		var schema domain.Schema
		uerr := json.Unmarshal([]byte(raw), &schema)
		if uerr == nil {
			return &schema, nil
		}
		s.logger.Warn("Dropping undecodable cached schema", zap.String("key", key), zap.Error(uerr))
	case !errors.Is(err, store.ErrMiss):
		s.logger.Warn("Failed to read cached schema", zap.String("key", key), zap.Error(err))
	}

	schema, err := s.origin.FetchFormSchema(ctx, countryID, lang)
	if err != nil {
		return nil, err
	}
	if b, merr := json.Marshal(schema); merr == nil {
		if serr := s.kv.Set(ctx, key, string(b), s.ttl); serr != nil {
			s.logger.Warn("Failed to cache schema", zap.String("key", key), zap.Error(serr))
		}
	}
	return schema, nil
}

// Invalidate drops every cached language of a country.
func (s *CachedSchemaSource) Invalidate(ctx context.Context, countryID string) error {
	keys, err := s.kv.ScanKeys(ctx, "form-schema:"+countryID+":*")
	if err != nil {
		return err
	}
	return s.kv.Del(ctx, keys...)
}
