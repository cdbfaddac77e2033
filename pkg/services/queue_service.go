package services

import (
	"context"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// DispatchTrigger nudges the dispatcher after a write. Satisfied by
// dispatch.Dispatcher; declared here so the service layer does not import
// the dispatch core.
type DispatchTrigger interface {
	Dispatch(ctx context.Context)
}

// CreateQueueInput contains the domain-level data needed to enqueue one
// dispensing job. Transformed from the HTTP request by the handler.
type CreateQueueInput struct {
	PatientID int64
	Items     []QueueItemInput
}

// QueueItemInput is one requested pill line.
type QueueItemInput struct {
	PillID   int64
	Quantity int
}

// QueueDetail is one queue with its full audit trail.
type QueueDetail struct {
	models.Queue
	Events []models.Event `json:"events"`
}

// QueueService handles queue creation, inspection, and deletion.
type QueueService struct {
	store   *store.Store
	trigger DispatchTrigger
	logger  *slog.Logger
}

// NewQueueService creates a new QueueService.
func NewQueueService(s *store.Store, trigger DispatchTrigger, logger *slog.Logger) *QueueService {
	if s == nil {
		panic("NewQueueService: store must not be nil")
	}
	if trigger == nil {
		panic("NewQueueService: trigger must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueService{store: s, trigger: trigger, logger: logger}
}

// Create validates and persists a new pending queue, then nudges the
// dispatcher: if the cell is idle and both nodes are ready, the queue
// goes out immediately.
func (s *QueueService) Create(ctx context.Context, input CreateQueueInput) (*models.Queue, error) {
	if input.PatientID <= 0 {
		return nil, NewValidationError("patient_id", "patient is required")
	}
	if len(input.Items) == 0 {
		return nil, NewValidationError("items", "at least one item is required")
	}
	items := make([]store.CreateQueueItem, len(input.Items))
	for i, item := range input.Items {
		if item.PillID <= 0 {
			return nil, NewValidationError("items", "pill is required")
		}
		if item.Quantity <= 0 {
			return nil, NewValidationError("items", "quantity must be positive")
		}
		items[i] = store.CreateQueueItem{PillID: item.PillID, Quantity: item.Quantity}
	}

	queue, err := s.store.CreateQueue(ctx, store.CreateQueueInput{
		PatientID: input.PatientID,
		Items:     items,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Queue created",
		"queue_id", queue.ID,
		"queue_number", queue.QueueNumber,
		"patient_id", queue.PatientID,
		"items", len(queue.Items))

	s.trigger.Dispatch(ctx)
	return queue, nil
}

// List returns the most recent queues with patient names and items.
func (s *QueueService) List(ctx context.Context, limit int) ([]store.QueueSummary, error) {
	return s.store.ListQueues(ctx, limit)
}

// Get returns one queue and its audit trail.
func (s *QueueService) Get(ctx context.Context, queueID int64) (*QueueDetail, error) {
	queue, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.EventsForQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return &QueueDetail{Queue: *queue, Events: events}, nil
}

// Delete removes a queue. Deleting an in_progress queue is an operator
// abort: the audit events stay, and any late node reports are recorded
// against the dead id.
func (s *QueueService) Delete(ctx context.Context, queueID int64) error {
	if err := s.store.DeleteQueue(ctx, queueID); err != nil {
		return err
	}
	s.logger.Info("Queue deleted", "queue_id", queueID)
	// The head of the backlog may have changed.
	s.trigger.Dispatch(ctx)
	return nil
}
