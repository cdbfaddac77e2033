package dispatch

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Joiner turns per-node completion reports into terminal queue states.
// The join decision itself lives in the store so it happens under one
// transaction; the joiner adds logging, metrics, the advisory ready flag,
// and the follow-up dispatch.
type Joiner struct {
	store      *store.Store
	readiness  *Tracker
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewJoiner wires the joiner to its collaborators.
func NewJoiner(s *store.Store, readiness *Tracker, dispatcher *Dispatcher, logger *slog.Logger) *Joiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Joiner{store: s, readiness: readiness, dispatcher: dispatcher, logger: logger}
}

// HandleCompletion processes one classified completion message. The
// caller guarantees NodeID and QueueID are present.
func (j *Joiner) HandleCompletion(ctx context.Context, msg broker.Message) {
	nodeID := *msg.NodeID
	queueID := *msg.QueueID

	out, err := j.store.RecordCompletion(ctx, store.CompletionInput{
		QueueID:  queueID,
		NodeID:   nodeID,
		Status:   msg.Status,
		Detected: msg.Detected,
		Payload:  msg.Payload,
	})
	if err != nil {
		// The transaction rolled back; per error policy the message is
		// dropped, QoS 1 redelivery or the watchdog picks up from here.
		j.logger.Error("Failed to record completion",
			"queue_id", queueID, "node_id", nodeID, "error", err)
		return
	}
	completionsTotal.WithLabelValues(strconv.Itoa(nodeID), string(out.Result)).Inc()

	switch out.Result {
	case store.CompletionDuplicate:
		j.logger.Warn("Duplicate completion dropped", "queue_id", queueID, "node_id", nodeID)
	case store.CompletionFirst:
		j.logger.Info("Completion recorded, waiting for companion node",
			"queue_id", queueID, "node_id", nodeID, "status", msg.Status)
	case store.CompletionVerificationFailed:
		queuesFinalizedTotal.WithLabelValues(string(models.QueueFailed)).Inc()
		j.logger.Warn("Pill count verification failed",
			"queue_id", queueID, "node_id", nodeID,
			"detected", out.Detected, "expected", out.Expected, "reason", out.Reason)
	case store.CompletionJoined:
		if !out.Finalized {
			j.logger.Warn("Completion joined after queue left in_progress; recorded as audit only",
				"queue_id", queueID, "node_id", nodeID, "would_be", out.Final)
			break
		}
		queuesFinalizedTotal.WithLabelValues(string(out.Final)).Inc()
		if out.Final == models.QueueSuccess {
			j.logger.Info("Queue completed", "queue_id", queueID)
		} else {
			j.logger.Warn("Queue failed", "queue_id", queueID, "reason", out.Reason)
		}
	}

	// Post-commit: the node that just reported is presumably free again.
	// Advisory only; the dispatch gate re-reads the database.
	j.readiness.SetAdvisoryReady(nodeID, true)
	j.dispatcher.Dispatch(ctx)
}

// HandleVision processes a standalone pill-count report. The caller
// guarantees Detected is present.
func (j *Joiner) HandleVision(ctx context.Context, msg broker.Message) {
	out, err := j.store.RecordVisionCheck(ctx, store.VisionReport{
		QueueID:  msg.QueueID,
		Detected: *msg.Detected,
		Payload:  msg.Payload,
	})
	if err != nil {
		j.logger.Error("Failed to record vision check", "error", err)
		return
	}
	if out.QueueID == nil {
		j.logger.Info("Vision report with no active queue", "detected", out.Detected)
		return
	}
	if out.Shortfall {
		j.logger.Warn("Vision check shortfall",
			"queue_id", *out.QueueID, "detected", out.Detected, "expected", out.Expected)
		return
	}
	j.logger.Info("Vision check",
		"queue_id", *out.QueueID, "detected", out.Detected, "expected", out.Expected)
}
