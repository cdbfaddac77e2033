package services

import (
	"context"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/dispatch"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Dashboard is the operator snapshot the UI polls: the queue in flight,
// backlog counters, node readiness, and the recent audit trail.
type Dashboard struct {
	Current       *store.QueueSummary      `json:"current"`
	PendingCount  int                      `json:"pending_count"`
	SuccessCount  int                      `json:"success_count"`
	FailedCount   int                      `json:"failed_count"`
	Nodes         []models.NodeStatus      `json:"nodes"`
	NodesReady    bool                     `json:"nodes_ready"`
	NodeVerdicts  []dispatch.NodeReadiness `json:"-"`
	AdvisoryReady map[int]bool             `json:"advisory_ready"`
	Events        []models.Event           `json:"events"`
}

// Lookup is the reference data the new-queue form needs.
type Lookup struct {
	Patients []models.Patient `json:"patients"`
	Pills    []models.Pill    `json:"pills"`
	Rooms    []int            `json:"rooms"`
}

// DashboardService assembles read-only views over the store and the
// readiness tracker.
type DashboardService struct {
	store   *store.Store
	tracker *dispatch.Tracker
	logger  *slog.Logger
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(s *store.Store, tracker *dispatch.Tracker, logger *slog.Logger) *DashboardService {
	if s == nil {
		panic("NewDashboardService: store must not be nil")
	}
	if tracker == nil {
		panic("NewDashboardService: tracker must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{store: s, tracker: tracker, logger: logger}
}

// Dashboard builds the operator snapshot. Reads are individually
// consistent but not a single transaction; the UI polls and tolerates
// staleness.
func (s *DashboardService) Dashboard(ctx context.Context) (*Dashboard, error) {
	current, err := s.store.CurrentInProgress(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountByStatus(ctx, models.QueuePending)
	if err != nil {
		return nil, err
	}
	success, err := s.store.CountByStatus(ctx, models.QueueSuccess)
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CountByStatus(ctx, models.QueueFailed)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.NodeStatuses(ctx)
	if err != nil {
		return nil, err
	}
	ready, verdicts, err := s.tracker.BothReady(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.store.RecentEvents(ctx, 50)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Current:       current,
		PendingCount:  pending,
		SuccessCount:  success,
		FailedCount:   failed,
		Nodes:         nodes,
		NodesReady:    ready,
		NodeVerdicts:  verdicts,
		AdvisoryReady: s.tracker.AdvisoryReady(),
		Events:        events,
	}, nil
}

// Lookup returns the reference data for queue creation.
func (s *DashboardService) Lookup(ctx context.Context) (*Lookup, error) {
	patients, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	pills, err := s.store.ListPills(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.store.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	return &Lookup{Patients: patients, Pills: pills, Rooms: rooms}, nil
}
