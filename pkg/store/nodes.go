package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pillcell/dispatcher/pkg/models"
)

// NodeTransition is the result of folding a state message into the node
// row: the stored row plus which flags actually flipped.
type NodeTransition struct {
	Status        models.NodeStatus
	FirstSeen     bool
	OnlineChanged bool
	ReadyChanged  bool
}

// UpsertNodeStatus folds one state message into the node's row. last_seen
// always moves to seenAt; last_online_change and last_ready_change move
// only when the corresponding flag flipped, so the readiness debounce
// measures time since the last flip rather than since the last heartbeat.
// The first message from a node counts as a flip of both flags.
func (s *Store) UpsertNodeStatus(ctx context.Context, nodeID int, online, ready bool, uptime int64, seenAt time.Time) (NodeTransition, error) {
	var transition NodeTransition
	if !models.ValidNode(nodeID) {
		return transition, fmt.Errorf("upsert node status: node %d is not part of the cell", nodeID)
	}
	seenAt = seenAt.UTC()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing models.NodeStatus
		err := tx.GetContext(ctx, &existing,
			`SELECT node_id, online, ready, uptime, last_seen, last_ready_change, last_online_change
			 FROM node_status WHERE node_id = ?`, nodeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			transition.FirstSeen = true
			transition.OnlineChanged = true
			transition.ReadyChanged = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO node_status (node_id, online, ready, uptime, last_seen, last_ready_change, last_online_change)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				nodeID, online, ready, uptime, seenAt, seenAt, seenAt); err != nil {
				return fmt.Errorf("insert node %d status: %w", nodeID, err)
			}
			transition.Status = models.NodeStatus{
				NodeID: nodeID, Online: online, Ready: ready, Uptime: uptime,
				LastSeen: &seenAt, LastReadyChange: &seenAt, LastOnlineChange: &seenAt,
			}
			return nil
		case err != nil:
			return fmt.Errorf("load node %d status: %w", nodeID, err)
		}

		lastOnlineChange := existing.LastOnlineChange
		if existing.Online != online {
			transition.OnlineChanged = true
			lastOnlineChange = &seenAt
		}
		lastReadyChange := existing.LastReadyChange
		if existing.Ready != ready {
			transition.ReadyChanged = true
			lastReadyChange = &seenAt
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE node_status
			 SET online = ?, ready = ?, uptime = ?, last_seen = ?, last_ready_change = ?, last_online_change = ?
			 WHERE node_id = ?`,
			online, ready, uptime, seenAt, lastReadyChange, lastOnlineChange, nodeID); err != nil {
			return fmt.Errorf("update node %d status: %w", nodeID, err)
		}
		transition.Status = models.NodeStatus{
			NodeID: nodeID, Online: online, Ready: ready, Uptime: uptime,
			LastSeen: &seenAt, LastReadyChange: lastReadyChange, LastOnlineChange: lastOnlineChange,
		}
		return nil
	})
	if err != nil {
		return NodeTransition{}, err
	}
	return transition, nil
}

// NodeStatusByID returns one node's row, or ErrNotFound if the node has
// never published state.
func (s *Store) NodeStatusByID(ctx context.Context, nodeID int) (*models.NodeStatus, error) {
	var status models.NodeStatus
	err := s.db.GetContext(ctx, &status,
		`SELECT node_id, online, ready, uptime, last_seen, last_ready_change, last_online_change
		 FROM node_status WHERE node_id = ?`, nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", nodeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("node %d status: %w", nodeID, err)
	}
	return &status, nil
}

// NodeStatuses returns the rows for all nodes that have published state,
// ordered by node id.
func (s *Store) NodeStatuses(ctx context.Context) ([]models.NodeStatus, error) {
	var statuses []models.NodeStatus
	err := s.db.SelectContext(ctx, &statuses,
		`SELECT node_id, online, ready, uptime, last_seen, last_ready_change, last_online_change
		 FROM node_status ORDER BY node_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("node statuses: %w", err)
	}
	return statuses, nil
}
