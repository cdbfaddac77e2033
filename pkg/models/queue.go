// Package models defines the persisted row types shared by the store, the
// dispatch core, and the HTTP API.
package models

import "time"

// QueueStatus represents the lifecycle state of a queue.
type QueueStatus string

// Queue lifecycle states. The only legal transitions are
// pending → in_progress (dispatch) and in_progress → success|failed (join).
const (
	QueuePending    QueueStatus = "pending"
	QueueInProgress QueueStatus = "in_progress"
	QueueSuccess    QueueStatus = "success"
	QueueFailed     QueueStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s QueueStatus) Terminal() bool {
	return s == QueueSuccess || s == QueueFailed
}

// Queue is one dispensing job for one patient.
type Queue struct {
	ID           int64       `db:"id" json:"id"`
	PatientID    int64       `db:"patient_id" json:"patient_id"`
	TargetRoom   int         `db:"target_room" json:"target_room"`
	Status       QueueStatus `db:"status" json:"status"`
	QueueNumber  int         `db:"queue_number" json:"queue_number"`
	Note         *string     `db:"note" json:"note,omitempty"`
	FailedReason *string     `db:"failed_reason" json:"failed_reason,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	ServedAt     *time.Time  `db:"served_at" json:"served_at,omitempty"`

	// Items is populated by store queries that join queue_items; it is not
	// itself a column.
	Items []QueueItem `db:"-" json:"items,omitempty"`
}

// QueueItem is one pill line of a queue. Quantity is always ≥ 1; liquid
// pills are normalized to quantity 1 at creation.
type QueueItem struct {
	ID       int64 `db:"id" json:"-"`
	QueueID  int64 `db:"queue_id" json:"-"`
	PillID   int64 `db:"pill_id" json:"pill_id"`
	Quantity int   `db:"quantity" json:"quantity"`
}
