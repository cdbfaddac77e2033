package services

import (
	"context"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// CreatePillInput contains the data to register a pill.
type CreatePillInput struct {
	Name   string
	Type   string // "solid" (default) or "liquid"
	Amount int
}

// PillService manages the pill inventory.
type PillService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewPillService creates a new PillService.
func NewPillService(s *store.Store, logger *slog.Logger) *PillService {
	if s == nil {
		panic("NewPillService: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PillService{store: s, logger: logger}
}

// Create validates and registers a pill.
func (s *PillService) Create(ctx context.Context, input CreatePillInput) (*models.Pill, error) {
	if input.Name == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if input.Amount < 0 {
		return nil, NewValidationError("amount", "amount must not be negative")
	}
	pillType := models.PillType(input.Type)
	switch pillType {
	case "":
		pillType = models.PillSolid
	case models.PillSolid, models.PillLiquid:
	default:
		return nil, NewValidationError("type", "type must be 'solid' or 'liquid'")
	}

	pill, err := s.store.CreatePill(ctx, input.Name, pillType, input.Amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Pill created", "pill_id", pill.ID, "name", pill.Name, "type", pill.Type)
	return pill, nil
}

// List returns the inventory.
func (s *PillService) List(ctx context.Context) ([]models.Pill, error) {
	return s.store.ListPills(ctx)
}

// AdjustStock applies a restock or correction delta, clamped at zero.
func (s *PillService) AdjustStock(ctx context.Context, pillID int64, delta int) (*models.Pill, error) {
	if delta == 0 {
		return nil, NewValidationError("delta", "delta must not be zero")
	}
	pill, err := s.store.AdjustPillStock(ctx, pillID, delta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Pill stock adjusted", "pill_id", pillID, "delta", delta, "amount", pill.Amount)
	return pill, nil
}

// Delete removes an unreferenced pill from the inventory.
func (s *PillService) Delete(ctx context.Context, pillID int64) error {
	if err := s.store.DeletePill(ctx, pillID); err != nil {
		return err
	}
	s.logger.Info("Pill deleted", "pill_id", pillID)
	return nil
}
