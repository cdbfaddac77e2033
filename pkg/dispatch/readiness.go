// Package dispatch contains the dispatch core: the readiness tracker, the
// completion joiner, the dispatcher itself, and the watchdog that keeps
// the three of them honest.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pillcell/dispatcher/pkg/config"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Tracker folds node state messages into the database and answers the
// readiness predicate the dispatcher gates on.
//
// It also keeps a small in-memory advisory map of per-node ready flags.
// The map is for the dashboard only: the claim path reads the database,
// never the map (a crashed process must not remember stale readiness).
type Tracker struct {
	store  *store.Store
	cfg    config.DispatchConfig
	logger *slog.Logger

	// now is the clock used for upserts and readiness evaluation.
	now func() time.Time

	mu       sync.Mutex
	advisory map[int]bool
}

// NewTracker builds a Tracker with the given readiness window settings.
func NewTracker(s *store.Store, cfg config.DispatchConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    s,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		advisory: make(map[int]bool),
	}
}

// HandleState folds one node-state message into the node's row. Flag
// flips are written to the audit log; heartbeats that repeat the same
// flags only advance last_seen.
func (t *Tracker) HandleState(ctx context.Context, nodeID int, online, ready bool, uptime int64) error {
	transition, err := t.store.UpsertNodeStatus(ctx, nodeID, online, ready, uptime, t.now())
	if err != nil {
		return err
	}

	nodeReadyGauge.WithLabelValues(strconv.Itoa(nodeID)).Set(boolToGauge(ready))
	t.SetAdvisoryReady(nodeID, online && ready)

	if transition.OnlineChanged || transition.ReadyChanged {
		message, _ := json.Marshal(map[string]any{
			"node": nodeID, "online": online, "ready": ready, "uptime": uptime,
		})
		if err := t.store.AppendEvent(ctx, nil, models.EventNodeState, string(message)); err != nil {
			return err
		}
		t.logger.Info("Node state changed",
			"node_id", nodeID, "online", online, "ready", ready,
			"first_seen", transition.FirstSeen)
	} else {
		t.logger.Debug("Node heartbeat", "node_id", nodeID, "online", online, "ready", ready)
	}
	return nil
}

// NodeReadiness is the per-node verdict behind a BothReady evaluation,
// kept around so the dispatcher can log why a queue is waiting.
type NodeReadiness struct {
	NodeID   int
	Exists   bool
	Online   bool
	Ready    bool
	Stale    bool // last_seen older than the max-age window
	Settling bool // ready flipped more recently than the debounce window
}

// OK reports whether this node passes the readiness predicate.
func (r NodeReadiness) OK() bool {
	return r.Exists && r.Online && r.Ready && !r.Stale && !r.Settling
}

// Summary renders the verdict for log lines.
func (r NodeReadiness) Summary() string {
	if !r.Exists {
		return "never seen"
	}
	parts := []string{fmt.Sprintf("online=%t ready=%t", r.Online, r.Ready)}
	if r.Stale {
		parts = append(parts, "stale")
	}
	if r.Settling {
		parts = append(parts, "settling")
	}
	return strings.Join(parts, " ")
}

// BothReady evaluates the dispatch gate: both nodes online and ready,
// seen within the max-age window, and past the ready debounce. The
// debounce keeps the dispatcher from racing a transient ready pulse; the
// max age keeps a crashed node's last "ready" from dispatching into a
// black hole.
func (t *Tracker) BothReady(ctx context.Context) (bool, []NodeReadiness, error) {
	rows, err := t.store.NodeStatuses(ctx)
	if err != nil {
		return false, nil, err
	}
	byID := make(map[int]models.NodeStatus, len(rows))
	for _, row := range rows {
		byID[row.NodeID] = row
	}

	now := t.now()
	verdicts := make([]NodeReadiness, 0, models.NodeCount)
	all := true
	for _, nodeID := range []int{models.NodePill, models.NodeRoom} {
		verdict := NodeReadiness{NodeID: nodeID}
		if row, ok := byID[nodeID]; ok {
			verdict.Exists = true
			verdict.Online = row.Online
			verdict.Ready = row.Ready
			verdict.Stale = row.LastSeen == nil || now.Sub(*row.LastSeen) > t.cfg.ReadyMaxAge
			verdict.Settling = row.LastReadyChange != nil && now.Sub(*row.LastReadyChange) < t.cfg.ReadyDebounce
		}
		if !verdict.OK() {
			all = false
		}
		verdicts = append(verdicts, verdict)
	}
	return all, verdicts, nil
}

// SetAdvisoryReady updates the in-memory advisory flag for one node.
func (t *Tracker) SetAdvisoryReady(nodeID int, ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advisory[nodeID] = ready
}

// ClearAdvisory marks both nodes busy; the dispatcher calls it right
// after publishing commands.
func (t *Tracker) ClearAdvisory() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, nodeID := range []int{models.NodePill, models.NodeRoom} {
		t.advisory[nodeID] = false
	}
}

// AdvisoryReady returns a copy of the advisory flags for display.
func (t *Tracker) AdvisoryReady() map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]bool, len(t.advisory))
	for nodeID, ready := range t.advisory {
		out[nodeID] = ready
	}
	return out
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
