package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/visaapi"
)

// AdminAPI pricing maintenance and application status, admin role only on the backend.
type AdminAPI interface {
	GetCurrentUser(ctx context.Context) (*domain.User, error)
	ListAllPricing(ctx context.Context) ([]domain.Pricing, error)
	CreatePricing(ctx context.Context, in domain.CreatePricingRequest) (*domain.Pricing, error)
	UpdatePricing(ctx context.Context, id string, in domain.UpdatePricingRequest) (*domain.Pricing, error)
	DeletePricing(ctx context.Context, id string) error
	UpdateApplicationStatus(ctx context.Context, id, status string) (*domain.Application, error)
}

// SchemaInvalidator drops cached schemas of a country.
type SchemaInvalidator interface {
	Invalidate(ctx context.Context, countryID string) error
}

// AdminService thin pass-through; authorisation is enforced by the visa backend.
type AdminService struct {
	api     AdminAPI
	schemas SchemaInvalidator
	logger  *zap.Logger
}

func NewAdminService(api AdminAPI, schemas SchemaInvalidator, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{api: api, schemas: schemas, logger: logger}
}

func (s *AdminService) CurrentUser(ctx context.Context) (*domain.User, error) {
	return s.api.GetCurrentUser(ctx)
}

func (s *AdminService) ListPricing(ctx context.Context) ([]domain.Pricing, error) {
	return s.api.ListAllPricing(ctx)
}

func (s *AdminService) CreatePricing(ctx context.Context, in domain.CreatePricingRequest) (*domain.Pricing, error) {
	if in.CountryID == "" {
		return nil, ErrCountryRequired
	}
	p, err := s.api.CreatePricing(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing: %w", err)
	}
	s.logger.Info("Pricing created", zap.String("pricing_id", p.ID), zap.String("country_id", p.CountryID))
	return p, nil
}

func (s *AdminService) UpdatePricing(ctx context.Context, id string, in domain.UpdatePricingRequest) (*domain.Pricing, error) {
	p, err := s.api.UpdatePricing(ctx, id, in)
	if err != nil {
		if visaapi.IsNotFound(err) {
			return nil, ErrPricingNotFound
		}
		return nil, fmt.Errorf("failed to update pricing: %w", err)
	}
	return p, nil
}

func (s *AdminService) DeletePricing(ctx context.Context, id string) error {
	if err := s.api.DeletePricing(ctx, id); err != nil {
		if visaapi.IsNotFound(err) {
			return ErrPricingNotFound
		}
		return fmt.Errorf("failed to delete pricing: %w", err)
	}
	s.logger.Info("Pricing deleted", zap.String("pricing_id", id))
	return nil
}

func (s *AdminService) UpdateApplicationStatus(ctx context.Context, id, status string) (*domain.Application, error) {
	app, err := s.api.UpdateApplicationStatus(ctx, id, status)
	if err != nil {
		if visaapi.IsNotFound(err) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return app, nil
}

// InvalidateSchemas forces the next form of countryID to refetch its schema.
func (s *AdminService) InvalidateSchemas(ctx context.Context, countryID string) error {
	if countryID == "" {
		return ErrCountryRequired
	}
	if s.schemas == nil {
		return nil
	}
	return s.schemas.Invalidate(ctx, countryID)
}
