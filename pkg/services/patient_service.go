package services

import (
	"context"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// PatientService manages the patient roster.
type PatientService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewPatientService creates a new PatientService.
func NewPatientService(s *store.Store, logger *slog.Logger) *PatientService {
	if s == nil {
		panic("NewPatientService: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PatientService{store: s, logger: logger}
}

// Create validates and registers a patient and their target room.
func (s *PatientService) Create(ctx context.Context, name string, room int) (*models.Patient, error) {
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if room <= 0 {
		return nil, NewValidationError("room", "room must be positive")
	}
	patient, err := s.store.CreatePatient(ctx, name, room)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Patient created", "patient_id", patient.ID, "name", patient.Name, "room", patient.Room)
	return patient, nil
}

// List returns all patients.
func (s *PatientService) List(ctx context.Context) ([]models.Patient, error) {
	return s.store.ListPatients(ctx)
}
