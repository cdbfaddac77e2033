package models

import "time"

// Node identifiers of the two actuator subsystems.
const (
	NodePill   = 1 // per-pill dispensing mechanism
	NodeRoom   = 2 // destination room + verification camera
	NodeCount  = 2
	FirstNode  = NodePill
	SecondNode = NodeRoom
)

// CompanionNode returns the other node of the pair.
func CompanionNode(nodeID int) int {
	if nodeID == NodePill {
		return NodeRoom
	}
	return NodePill
}

// ValidNode reports whether id names one of the cell's actuator nodes.
func ValidNode(id int) bool {
	return id == NodePill || id == NodeRoom
}

// NodeStatus is the persisted readiness row for one node. Exactly one row
// exists per node; every inbound state message upserts it. The *_change
// columns are touched only when the corresponding flag flips value.
type NodeStatus struct {
	NodeID           int        `db:"node_id" json:"node_id"`
	Online           bool       `db:"online" json:"online"`
	Ready            bool       `db:"ready" json:"ready"`
	Uptime           int64      `db:"uptime" json:"uptime"`
	LastSeen         *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	LastReadyChange  *time.Time `db:"last_ready_change" json:"last_ready_change,omitempty"`
	LastOnlineChange *time.Time `db:"last_online_change" json:"last_online_change,omitempty"`
}
