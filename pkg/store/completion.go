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

// CompletionResult classifies what a completion report did to the queue.
type CompletionResult string

const (
	// CompletionDuplicate means the node already reported; nothing was written.
	CompletionDuplicate CompletionResult = "duplicate"
	// CompletionFirst means this node reported first; the queue stays
	// in_progress waiting for the companion.
	CompletionFirst CompletionResult = "first"
	// CompletionJoined means both nodes have now reported and the queue
	// reached a terminal status.
	CompletionJoined CompletionResult = "joined"
	// CompletionVerificationFailed means the pill count fell short and the
	// queue failed without waiting for the companion.
	CompletionVerificationFailed CompletionResult = "verification_failed"
)

// CompletionInput is one node's done report, already parsed off the wire.
type CompletionInput struct {
	QueueID int64
	NodeID  int
	// Status is the node's raw status string; empty means it reported
	// plain done with no status field, which counts as success.
	Status string
	// Detected is the pill count the node's camera saw. nil when the
	// payload carried no count; -1 when it carried one that did not parse
	// as a number.
	Detected *int
	// Payload is the raw report, persisted verbatim as the event message.
	Payload []byte
}

// CompletionOutcome reports what RecordCompletion decided.
type CompletionOutcome struct {
	Result CompletionResult
	// Final is the terminal status the queue reached, set when Result is
	// joined or verification_failed.
	Final  models.QueueStatus
	Reason string
	// Finalized is false when the join decided a terminal status but the
	// queue was no longer in_progress, so the row kept its earlier state.
	Finalized bool
	// Expected and Detected carry the verification figures when the
	// payload included a count.
	Expected int
	Detected int
}

// RecordCompletion is the join point of the dispatch cycle. It runs the
// whole decision in one transaction: drop duplicates, persist the done
// event, verify the pill count when one was reported, and finalize the
// queue once both nodes have reported.
//
// A count below the expected total fails the queue immediately; the
// companion's later report is still recorded but cannot reopen the row.
// Otherwise the queue succeeds only when both reports carry a success
// status, and any other pair fails it with a reason naming both statuses.
func (s *Store) RecordCompletion(ctx context.Context, input CompletionInput) (CompletionOutcome, error) {
	var out CompletionOutcome
	if !models.ValidNode(input.NodeID) {
		return out, fmt.Errorf("record completion: node %d is not part of the cell", input.NodeID)
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		kind := models.DoneEventKind(input.NodeID)

		var seen int
		if err := tx.GetContext(ctx, &seen,
			`SELECT COUNT(*) FROM events WHERE queue_id = ? AND event = ?`,
			input.QueueID, kind); err != nil {
			return fmt.Errorf("check duplicate completion: %w", err)
		}
		if seen > 0 {
			out.Result = CompletionDuplicate
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (queue_id, event, message) VALUES (?, ?, ?)`,
			input.QueueID, kind, string(input.Payload))
		if err != nil {
			return fmt.Errorf("append %s event: %w", kind, err)
		}
		eventID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("append %s event: %w", kind, err)
		}

		now := time.Now().UTC()

		if input.Detected != nil {
			expected, err := expectedCountTx(ctx, tx, input.QueueID)
			if err != nil {
				return err
			}
			out.Expected = expected
			out.Detected = *input.Detected

			figures, _ := json.Marshal(map[string]int{
				"node": input.NodeID, "expected": expected, "detected": *input.Detected,
			})
			if *input.Detected < expected {
				// Mark the stored report itself as failed so a later join
				// against it sees the verification verdict, not the node's
				// self-reported status.
				if _, err := tx.ExecContext(ctx,
					`UPDATE events SET message = ? WHERE id = ?`,
					rewriteFailedVerification(input.Payload, expected, *input.Detected), eventID); err != nil {
					return fmt.Errorf("rewrite %s event: %w", kind, err)
				}
				if err := appendEventTx(ctx, tx, &input.QueueID, models.EventVerificationFailed, string(figures)); err != nil {
					return err
				}
				reason := fmt.Sprintf("verification_failed_node%d:detected=%d:expected=%d",
					input.NodeID, *input.Detected, expected)
				finalized, err := finalizeQueueTx(ctx, tx, input.QueueID, models.QueueFailed, reason, now)
				if err != nil {
					return err
				}
				out.Result = CompletionVerificationFailed
				out.Final = models.QueueFailed
				out.Reason = reason
				out.Finalized = finalized
				return nil
			}
			if err := appendEventTx(ctx, tx, &input.QueueID, models.EventVerificationPass, string(figures)); err != nil {
				return err
			}
		}

		companion := models.CompanionNode(input.NodeID)
		var companionMessage string
		err = tx.GetContext(ctx, &companionMessage,
			`SELECT message FROM events WHERE queue_id = ? AND event = ? ORDER BY id ASC LIMIT 1`,
			input.QueueID, models.DoneEventKind(companion))
		if errors.Is(err, sql.ErrNoRows) {
			out.Result = CompletionFirst
			return nil
		}
		if err != nil {
			return fmt.Errorf("load companion completion: %w", err)
		}

		statuses := map[int]string{
			input.NodeID: displayStatus(input.Status),
			companion:    statusFromMessage(companionMessage),
		}
		if isSuccessStatus(statuses[models.NodePill]) && isSuccessStatus(statuses[models.NodeRoom]) {
			finalized, err := finalizeQueueTx(ctx, tx, input.QueueID, models.QueueSuccess, "", now)
			if err != nil {
				return err
			}
			out.Result = CompletionJoined
			out.Final = models.QueueSuccess
			out.Finalized = finalized
			return nil
		}

		reason := fmt.Sprintf("node1:%s, node2:%s", statuses[models.NodePill], statuses[models.NodeRoom])
		if err := appendEventTx(ctx, tx, &input.QueueID, models.EventQueueFailed, reason); err != nil {
			return err
		}
		finalized, err := finalizeQueueTx(ctx, tx, input.QueueID, models.QueueFailed, reason, now)
		if err != nil {
			return err
		}
		out.Result = CompletionJoined
		out.Final = models.QueueFailed
		out.Reason = reason
		out.Finalized = finalized
		return nil
	})
	if err != nil {
		return CompletionOutcome{}, err
	}
	return out, nil
}

// VisionReport is a standalone pill-count observation, not tied to a
// done report.
type VisionReport struct {
	// QueueID is the queue the camera watched; nil means whatever queue
	// is currently in_progress.
	QueueID  *int64
	Detected int
	Payload  []byte
}

// VisionOutcome reports what a standalone vision check observed.
type VisionOutcome struct {
	// QueueID is nil when no queue could be resolved for the report.
	QueueID   *int64
	Expected  int
	Detected  int
	Shortfall bool
	Note      string
}

// RecordVisionCheck persists a standalone vision observation and stamps a
// human-readable summary on the queue's note. Vision checks are advisory:
// they never change queue status.
func (s *Store) RecordVisionCheck(ctx context.Context, report VisionReport) (VisionOutcome, error) {
	var out VisionOutcome
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		queueID := report.QueueID
		if queueID == nil {
			var id int64
			err := tx.GetContext(ctx, &id,
				`SELECT id FROM queues WHERE status = ? ORDER BY id ASC LIMIT 1`,
				models.QueueInProgress)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("resolve in-progress queue: %w", err)
			}
			if err == nil {
				queueID = &id
			}
		}
		out.QueueID = queueID
		out.Detected = report.Detected

		if queueID == nil {
			// Nothing to compare against; keep the observation on record.
			return appendEventTx(ctx, tx, nil, models.EventVisionCheck, string(report.Payload))
		}

		expected, err := expectedCountTx(ctx, tx, *queueID)
		if err != nil {
			return err
		}
		out.Expected = expected
		out.Shortfall = report.Detected < expected
		out.Note = fmt.Sprintf("vision: detected %d of %d expected", report.Detected, expected)

		figures, _ := json.Marshal(map[string]int{"expected": expected, "detected": report.Detected})
		if err := appendEventTx(ctx, tx, queueID, models.EventVisionCheck, string(figures)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queues SET note = ? WHERE id = ?`, out.Note, *queueID); err != nil {
			return fmt.Errorf("update queue %d note: %w", *queueID, err)
		}
		return nil
	})
	if err != nil {
		return VisionOutcome{}, err
	}
	return out, nil
}

func expectedCountTx(ctx context.Context, tx *sqlx.Tx, queueID int64) (int, error) {
	var expected int
	err := tx.GetContext(ctx, &expected,
		`SELECT COALESCE(SUM(quantity), 0) FROM queue_items WHERE queue_id = ?`, queueID)
	if err != nil {
		return 0, fmt.Errorf("expected count for queue %d: %w", queueID, err)
	}
	return expected, nil
}

// displayStatus renders the raw wire status for reasons and joins. A
// report without a status field counts as plain success.
func displayStatus(raw string) string {
	if raw == "" {
		return "success"
	}
	return raw
}

// isSuccessStatus reports whether a node status string counts as success.
// Nodes historically reported both "success" and "ok"; everything else,
// including garbage, is failure.
func isSuccessStatus(s string) bool {
	return s == "success" || s == "ok"
}

// statusFromMessage extracts the status out of a stored done event. A
// missing field defaults to success; a message that no longer parses as a
// JSON object counts as failed.
func statusFromMessage(message string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(message), &doc); err != nil || doc == nil {
		return "failed"
	}
	raw, ok := doc["status"]
	if !ok {
		return "success"
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "success"
	}
	return s
}

func rewriteFailedVerification(payload []byte, expected, detected int) string {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		doc = map[string]any{}
	}
	doc["status"] = "failed"
	doc["verification"] = map[string]int{"expected": expected, "detected": detected}
	rewritten, _ := json.Marshal(doc)
	return string(rewritten)
}
