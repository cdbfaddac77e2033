package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pillcell/dispatcher/pkg/models"
)

// AppendEvent writes one audit row. queueID may be nil for events that
// arrived without a resolvable queue (unknown payloads, parse errors,
// vision reports while the cell is idle).
func (s *Store) AppendEvent(ctx context.Context, queueID *int64, kind, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (queue_id, event, message) VALUES (?, ?, ?)`,
		queueID, kind, message)
	if err != nil {
		return fmt.Errorf("append %s event: %w", kind, err)
	}
	return nil
}

func appendEventTx(ctx context.Context, tx *sqlx.Tx, queueID *int64, kind, message string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (queue_id, event, message) VALUES (?, ?, ?)`,
		queueID, kind, message)
	if err != nil {
		return fmt.Errorf("append %s event: %w", kind, err)
	}
	return nil
}

// RecentEvents returns the newest audit rows, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, queue_id, event, message, ts FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

// EventsForQueue returns a queue's audit trail in insertion order.
func (s *Store) EventsForQueue(ctx context.Context, queueID int64) ([]models.Event, error) {
	var events []models.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, queue_id, event, message, ts FROM events WHERE queue_id = ? ORDER BY id ASC`, queueID)
	if err != nil {
		return nil, fmt.Errorf("events for queue %d: %w", queueID, err)
	}
	return events, nil
}
