package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pillcell/dispatcher/pkg/models"
)

// ListPills returns the pill inventory ordered by name.
func (s *Store) ListPills(ctx context.Context) ([]models.Pill, error) {
	var pills []models.Pill
	err := s.db.SelectContext(ctx, &pills,
		`SELECT id, name, type, amount FROM pills ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pills: %w", err)
	}
	return pills, nil
}

// GetPill returns one pill row, or ErrNotFound.
func (s *Store) GetPill(ctx context.Context, pillID int64) (*models.Pill, error) {
	var pill models.Pill
	err := s.db.GetContext(ctx, &pill,
		`SELECT id, name, type, amount FROM pills WHERE id = ?`, pillID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pill %d: %w", pillID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pill %d: %w", pillID, err)
	}
	return &pill, nil
}

// CreatePill registers a new pill with its starting stock.
func (s *Store) CreatePill(ctx context.Context, name string, pillType models.PillType, amount int) (*models.Pill, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pills (name, type, amount) VALUES (?, ?, ?)`, name, pillType, amount)
	if err != nil {
		return nil, fmt.Errorf("create pill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create pill: %w", err)
	}
	return &models.Pill{ID: id, Name: name, Type: pillType, Amount: amount}, nil
}

// AdjustPillStock applies a signed delta to a pill's stock, clamped at
// zero, and returns the updated row.
func (s *Store) AdjustPillStock(ctx context.Context, pillID int64, delta int) (*models.Pill, error) {
	var pill models.Pill
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE pills SET amount = MAX(0, amount + ?) WHERE id = ?`, delta, pillID)
		if err != nil {
			return fmt.Errorf("adjust stock for pill %d: %w", pillID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("adjust stock for pill %d: %w", pillID, err)
		}
		if n == 0 {
			return fmt.Errorf("pill %d: %w", pillID, ErrNotFound)
		}
		if err := tx.GetContext(ctx, &pill,
			`SELECT id, name, type, amount FROM pills WHERE id = ?`, pillID); err != nil {
			return fmt.Errorf("read back pill %d: %w", pillID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pill, nil
}

// DeletePill removes a pill from the inventory. Pills referenced by queue
// items, past or present, stay: the audit trail must keep resolving.
func (s *Store) DeletePill(ctx context.Context, pillID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var referenced int
		if err := tx.GetContext(ctx, &referenced,
			`SELECT COUNT(*) FROM queue_items WHERE pill_id = ?`, pillID); err != nil {
			return fmt.Errorf("check pill %d references: %w", pillID, err)
		}
		if referenced > 0 {
			return fmt.Errorf("pill %d: %w", pillID, ErrPillInUse)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pills WHERE id = ?`, pillID)
		if err != nil {
			return fmt.Errorf("delete pill %d: %w", pillID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete pill %d: %w", pillID, err)
		}
		if n == 0 {
			return fmt.Errorf("pill %d: %w", pillID, ErrNotFound)
		}
		return nil
	})
}

// CreatePatient registers a patient and the room their medication is
// routed to.
func (s *Store) CreatePatient(ctx context.Context, name string, room int) (*models.Patient, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (name, room) VALUES (?, ?)`, name, room)
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	var patient models.Patient
	if err := s.db.GetContext(ctx, &patient,
		`SELECT id, name, room, created_at FROM patients WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("read back patient %d: %w", id, err)
	}
	return &patient, nil
}

// ListPatients returns all patients ordered by name.
func (s *Store) ListPatients(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	err := s.db.SelectContext(ctx, &patients,
		`SELECT id, name, room, created_at FROM patients ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// Rooms returns the distinct rooms patients are assigned to.
func (s *Store) Rooms(ctx context.Context) ([]int, error) {
	var rooms []int
	err := s.db.SelectContext(ctx, &rooms,
		`SELECT DISTINCT room FROM patients ORDER BY room ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
