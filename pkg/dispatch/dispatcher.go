package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Dispatcher claims the next pending queue and sends the dispensing
// commands. Dispatch is the single entry point; every trigger in the
// process calls the same method.
type Dispatcher struct {
	store     *store.Store
	publisher broker.Publisher
	topics    broker.Topics
	readiness *Tracker
	logger    *slog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(s *store.Store, publisher broker.Publisher, topics broker.Topics, readiness *Tracker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     s,
		publisher: publisher,
		topics:    topics,
		readiness: readiness,
		logger:    logger,
	}
}

// pillCommand is the payload for node 1: everything it needs to dispense.
type pillCommand struct {
	QueueID    int64         `json:"queue_id"`
	PatientID  int64         `json:"patient_id"`
	TargetRoom int           `json:"target_room"`
	Items      []commandItem `json:"items"`
}

type commandItem struct {
	PillID   int64 `json:"pill_id"`
	Quantity int   `json:"quantity"`
}

// roomCommand is the payload for node 2: a trigger with routing context.
// Node 2 only moves the tray, so it never sees the item list.
type roomCommand struct {
	QueueID    int64 `json:"queue_id"`
	PatientID  int64 `json:"patient_id"`
	TargetRoom int   `json:"target_room"`
}

// Dispatch runs one dispatch attempt. It is idempotent and safe to call
// from any goroutine at any time: every decision is re-derived from the
// database, and the claim is a conditional UPDATE that at most one caller
// can win. All failure paths log and return; nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context) {
	// A queue already in flight means we only monitor. More than one
	// breaks the single-active-queue rule and points at corruption
	// somewhere else; dispatching on top would make it worse.
	active, err := d.store.ListInProgress(ctx)
	if err != nil {
		d.logger.Error("Dispatch aborted: failed to list in-progress queues", "error", err)
		return
	}
	if len(active) > 1 {
		ids := make([]int64, len(active))
		for i, q := range active {
			ids[i] = q.ID
		}
		d.logger.Warn("Multiple queues in progress; dispatch suspended", "queue_ids", ids)
		return
	}
	if len(active) == 1 {
		d.logger.Debug("Queue in progress, monitoring", "queue_id", active[0].ID)
		return
	}

	next, err := d.store.NextPending(ctx)
	if errors.Is(err, store.ErrNoPending) {
		return
	}
	if err != nil {
		d.logger.Error("Dispatch aborted: failed to peek pending queue", "error", err)
		return
	}

	ready, verdicts, err := d.readiness.BothReady(ctx)
	if err != nil {
		d.logger.Error("Dispatch aborted: failed to evaluate readiness", "error", err)
		return
	}
	if !ready {
		d.logger.Info("Nodes not ready, queue waiting",
			"queue_id", next.ID,
			"node1", verdicts[0].Summary(),
			"node2", verdicts[1].Summary())
		return
	}

	claimed, err := d.store.ClaimPending(ctx, next.ID)
	if err != nil {
		d.logger.Error("Dispatch aborted: claim failed", "queue_id", next.ID, "error", err)
		return
	}
	if !claimed {
		// Another trigger got here first, or a queue slipped into
		// progress between the peek and the claim.
		d.logger.Debug("Claim lost, skipping", "queue_id", next.ID)
		return
	}

	// Claim precedes publish: a crash between the two leaves the queue
	// in_progress for an operator, never half-dispatched to the nodes.
	if err := d.publishCommands(next); err != nil {
		publishErrorsTotal.Inc()
		d.logger.Error("Failed to publish dispatch commands; queue stays in progress",
			"queue_id", next.ID, "error", err)
	}

	d.readiness.ClearAdvisory()
	queuesDispatchedTotal.Inc()
	d.logger.Info("Dispatched queue",
		"queue_id", next.ID,
		"queue_number", next.QueueNumber,
		"patient_id", next.PatientID,
		"target_room", next.TargetRoom,
		"items", len(next.Items))
}

func (d *Dispatcher) publishCommands(queue *models.Queue) error {
	items := make([]commandItem, len(queue.Items))
	for i, item := range queue.Items {
		items[i] = commandItem{PillID: item.PillID, Quantity: item.Quantity}
	}
	pill, err := json.Marshal(pillCommand{
		QueueID:    queue.ID,
		PatientID:  queue.PatientID,
		TargetRoom: queue.TargetRoom,
		Items:      items,
	})
	if err != nil {
		return fmt.Errorf("encode pill command: %w", err)
	}
	room, err := json.Marshal(roomCommand{
		QueueID:    queue.ID,
		PatientID:  queue.PatientID,
		TargetRoom: queue.TargetRoom,
	})
	if err != nil {
		return fmt.Errorf("encode room command: %w", err)
	}

	return errors.Join(
		d.publisher.Publish(d.topics.Command(models.NodePill), pill),
		d.publisher.Publish(d.topics.Command(models.NodeRoom), room),
	)
}
