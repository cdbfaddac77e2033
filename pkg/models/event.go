package models

import (
	"fmt"
	"time"
)

// Event is one append-only audit log row. QueueID is nullable: parse errors
// and node-state events are not tied to a queue, and completion events may
// outlive an operator-deleted queue.
type Event struct {
	ID      int64     `db:"id" json:"id"`
	QueueID *int64    `db:"queue_id" json:"queue_id,omitempty"`
	Event   string    `db:"event" json:"event"`
	Message string    `db:"message" json:"message,omitempty"`
	TS      time.Time `db:"ts" json:"ts"`
}

// Audit event kinds written by the dispatch core.
const (
	// Queue lifecycle
	EventCreated     = "created"
	EventQueueFailed = "queue_failed"

	// Broker acknowledgements
	EventAckAccepted   = "ack_accepted"
	EventAckRejected   = "ack_rejected"
	EventAckUnknown    = "ack_unknown"
	EventAckParseError = "ack_parse_error"

	// Per-node completion events. At most one row of each kind per queue.
	EventDoneNode1 = "evt_done_node1"
	EventDoneNode2 = "evt_done_node2"

	// Node state and camera verification
	EventNodeState          = "node_state"
	EventVerificationPass   = "node_verification_pass"
	EventVerificationFailed = "node_verification_failed"
	EventVisionCheck        = "vision_check"
)

// DoneEventKind returns the completion event kind for a node id.
// Only nodes 1 and 2 exist in the cell.
func DoneEventKind(nodeID int) string {
	return fmt.Sprintf("evt_done_node%d", nodeID)
}
