package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pillcell/dispatcher/pkg/models"
)

// CreateQueueItem is one requested line of a new queue.
type CreateQueueItem struct {
	PillID   int64 `json:"pill_id"`
	Quantity int   `json:"quantity"`
}

// CreateQueueInput describes a queue to enqueue. The target room is
// resolved from the patient row, not supplied by the caller.
type CreateQueueInput struct {
	PatientID int64
	Items     []CreateQueueItem
}

// QueueSummary is a queue row joined with the patient name for display.
type QueueSummary struct {
	models.Queue
	PatientName string `db:"patient_name" json:"patient_name"`
}

// CreateQueue inserts a new pending queue with its items, decrements pill
// stock, and appends the created audit event, all in one transaction.
// Liquid pills are dispensed one dose at a time regardless of the
// requested quantity. Returns ErrInsufficientStock when any item asks for
// more units than the pill row holds.
func (s *Store) CreateQueue(ctx context.Context, input CreateQueueInput) (*models.Queue, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("queue needs at least one item")
	}

	var queue models.Queue
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var patient models.Patient
		err := tx.GetContext(ctx, &patient,
			`SELECT id, name, room, created_at FROM patients WHERE id = ?`, input.PatientID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("patient %d: %w", input.PatientID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load patient %d: %w", input.PatientID, err)
		}

		items := make([]models.QueueItem, 0, len(input.Items))
		for _, item := range input.Items {
			var pill models.Pill
			err := tx.GetContext(ctx, &pill,
				`SELECT id, name, type, amount FROM pills WHERE id = ?`, item.PillID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("pill %d: %w", item.PillID, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("load pill %d: %w", item.PillID, err)
			}

			quantity := item.Quantity
			if pill.Type == models.PillLiquid {
				quantity = 1
			}
			if pill.Amount < quantity {
				return fmt.Errorf("pill %q has %d units, need %d: %w",
					pill.Name, pill.Amount, quantity, ErrInsufficientStock)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE pills SET amount = amount - ? WHERE id = ?`, quantity, pill.ID); err != nil {
				return fmt.Errorf("decrement stock for pill %d: %w", pill.ID, err)
			}
			items = append(items, models.QueueItem{PillID: pill.ID, Quantity: quantity})
		}

		// Queue numbers restart at 1 each day; they are the label the ward
		// staff read out, not an identifier.
		var queueNumber int
		if err := tx.GetContext(ctx, &queueNumber,
			`SELECT COUNT(*) + 1 FROM queues WHERE DATE(created_at) = DATE('now')`); err != nil {
			return fmt.Errorf("compute queue number: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO queues (patient_id, target_room, status, queue_number)
			 VALUES (?, ?, ?, ?)`,
			patient.ID, patient.Room, models.QueuePending, queueNumber)
		if err != nil {
			return fmt.Errorf("insert queue: %w", err)
		}
		queueID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("queue id: %w", err)
		}

		for i := range items {
			items[i].QueueID = queueID
			res, err := tx.ExecContext(ctx,
				`INSERT INTO queue_items (queue_id, pill_id, quantity) VALUES (?, ?, ?)`,
				queueID, items[i].PillID, items[i].Quantity)
			if err != nil {
				return fmt.Errorf("insert queue item: %w", err)
			}
			items[i].ID, _ = res.LastInsertId()
		}

		message, _ := json.Marshal(map[string]any{
			"patient_id":   patient.ID,
			"target_room":  patient.Room,
			"queue_number": queueNumber,
		})
		if err := appendEventTx(ctx, tx, &queueID, models.EventCreated, string(message)); err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &queue, querySelectQueue+` WHERE id = ?`, queueID); err != nil {
			return fmt.Errorf("read back queue %d: %w", queueID, err)
		}
		queue.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &queue, nil
}

const querySelectQueue = `
	SELECT id, patient_id, target_room, status, queue_number,
	       note, failed_reason, created_at, served_at
	FROM queues`

// ClaimPending atomically moves the queue from pending to in_progress.
// The claim succeeds only if the row is still pending AND no other queue
// is in_progress, which makes the single-active-queue rule a property of
// the statement rather than of caller locking. Returns false when the
// guard rejected the claim.
func (s *Store) ClaimPending(ctx context.Context, queueID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queues SET status = ?
		 WHERE id = ? AND status = ?
		   AND NOT EXISTS (SELECT 1 FROM queues WHERE status = ?)`,
		models.QueueInProgress, queueID, models.QueuePending, models.QueueInProgress)
	if err != nil {
		return false, fmt.Errorf("claim queue %d: %w", queueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim queue %d: %w", queueID, err)
	}
	return n == 1, nil
}

// FinalizeQueue moves an in_progress queue to a terminal status. Success
// stamps served_at; failure records the reason. The in_progress guard
// means terminal rows are never rewritten: finalizing an already-terminal
// or still-pending queue is a no-op and returns false.
func (s *Store) FinalizeQueue(ctx context.Context, queueID int64, status models.QueueStatus, reason string) (bool, error) {
	var finalized bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		finalized, err = finalizeQueueTx(ctx, tx, queueID, status, reason, time.Now().UTC())
		return err
	})
	return finalized, err
}

func finalizeQueueTx(ctx context.Context, tx *sqlx.Tx, queueID int64, status models.QueueStatus, reason string, now time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch status {
	case models.QueueSuccess:
		res, err = tx.ExecContext(ctx,
			`UPDATE queues SET status = ?, served_at = ? WHERE id = ? AND status = ?`,
			models.QueueSuccess, now, queueID, models.QueueInProgress)
	case models.QueueFailed:
		res, err = tx.ExecContext(ctx,
			`UPDATE queues SET status = ?, failed_reason = ? WHERE id = ? AND status = ?`,
			models.QueueFailed, reason, queueID, models.QueueInProgress)
	default:
		return false, fmt.Errorf("finalize queue %d: %q is not a terminal status", queueID, status)
	}
	if err != nil {
		return false, fmt.Errorf("finalize queue %d: %w", queueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize queue %d: %w", queueID, err)
	}
	return n == 1, nil
}

// NextPending returns the oldest pending queue with its items, or
// ErrNoPending when the backlog is empty. Dispatch order is strictly by
// ascending id.
func (s *Store) NextPending(ctx context.Context) (*models.Queue, error) {
	var queue models.Queue
	err := s.db.GetContext(ctx, &queue,
		querySelectQueue+` WHERE status = ? ORDER BY id ASC LIMIT 1`, models.QueuePending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("next pending queue: %w", err)
	}
	items, err := s.queueItems(ctx, queue.ID)
	if err != nil {
		return nil, err
	}
	queue.Items = items
	return &queue, nil
}

// ListInProgress returns every in_progress queue in id order. Steady
// state holds at most one row; the dispatcher logs a warning when it
// observes more.
func (s *Store) ListInProgress(ctx context.Context) ([]models.Queue, error) {
	var queues []models.Queue
	err := s.db.SelectContext(ctx, &queues,
		querySelectQueue+` WHERE status = ? ORDER BY id ASC`, models.QueueInProgress)
	if err != nil {
		return nil, fmt.Errorf("list in-progress queues: %w", err)
	}
	return queues, nil
}

// CurrentInProgress returns the active queue joined with the patient
// name, or nil when the cell is idle.
func (s *Store) CurrentInProgress(ctx context.Context) (*QueueSummary, error) {
	var summary QueueSummary
	err := s.db.GetContext(ctx, &summary,
		`SELECT q.id, q.patient_id, q.target_room, q.status, q.queue_number,
		        q.note, q.failed_reason, q.created_at, q.served_at,
		        COALESCE(p.name, '') AS patient_name
		 FROM queues q
		 LEFT JOIN patients p ON p.id = q.patient_id
		 WHERE q.status = ?
		 ORDER BY q.id ASC LIMIT 1`, models.QueueInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current in-progress queue: %w", err)
	}
	items, err := s.queueItems(ctx, summary.ID)
	if err != nil {
		return nil, err
	}
	summary.Items = items
	return &summary, nil
}

// GetQueue returns one queue with its items, or ErrNotFound.
func (s *Store) GetQueue(ctx context.Context, queueID int64) (*models.Queue, error) {
	var queue models.Queue
	err := s.db.GetContext(ctx, &queue, querySelectQueue+` WHERE id = ?`, queueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue %d: %w", queueID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue %d: %w", queueID, err)
	}
	items, err := s.queueItems(ctx, queueID)
	if err != nil {
		return nil, err
	}
	queue.Items = items
	return &queue, nil
}

// ListQueues returns the most recent queues (newest first) joined with
// patient names, items attached.
func (s *Store) ListQueues(ctx context.Context, limit int) ([]QueueSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var summaries []QueueSummary
	err := s.db.SelectContext(ctx, &summaries,
		`SELECT q.id, q.patient_id, q.target_room, q.status, q.queue_number,
		        q.note, q.failed_reason, q.created_at, q.served_at,
		        COALESCE(p.name, '') AS patient_name
		 FROM queues q
		 LEFT JOIN patients p ON p.id = q.patient_id
		 ORDER BY q.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	ids := make([]int64, len(summaries))
	for i := range summaries {
		ids[i] = summaries[i].ID
	}
	query, args, err := sqlx.In(
		`SELECT id, queue_id, pill_id, quantity FROM queue_items WHERE queue_id IN (?) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build queue items query: %w", err)
	}
	var items []models.QueueItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	byQueue := make(map[int64][]models.QueueItem, len(summaries))
	for _, item := range items {
		byQueue[item.QueueID] = append(byQueue[item.QueueID], item)
	}
	for i := range summaries {
		summaries[i].Items = byQueue[summaries[i].ID]
	}
	return summaries, nil
}

// DeleteQueue removes a queue and its items (cascade). Audit events keep
// their rows; their queue_id simply no longer resolves. Stock is not
// restored: units may already have left the cabinet.
func (s *Store) DeleteQueue(ctx context.Context, queueID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queues WHERE id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("delete queue %d: %w", queueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete queue %d: %w", queueID, err)
	}
	if n == 0 {
		return fmt.Errorf("queue %d: %w", queueID, ErrNotFound)
	}
	return nil
}

// CountByStatus returns how many queues sit in the given status.
func (s *Store) CountByStatus(ctx context.Context, status models.QueueStatus) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM queues WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("count %s queues: %w", status, err)
	}
	return count, nil
}

// ExpectedCount returns the total unit count a queue asks for, i.e. the
// number the vision check compares detections against.
func (s *Store) ExpectedCount(ctx context.Context, queueID int64) (int, error) {
	var expected int
	err := s.db.GetContext(ctx, &expected,
		`SELECT COALESCE(SUM(quantity), 0) FROM queue_items WHERE queue_id = ?`, queueID)
	if err != nil {
		return 0, fmt.Errorf("expected count for queue %d: %w", queueID, err)
	}
	return expected, nil
}

func (s *Store) queueItems(ctx context.Context, queueID int64) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, queue_id, pill_id, quantity FROM queue_items WHERE queue_id = ? ORDER BY id ASC`, queueID)
	if err != nil {
		return nil, fmt.Errorf("items for queue %d: %w", queueID, err)
	}
	return items, nil
}
