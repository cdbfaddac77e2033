package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/models"
)

func TestUpsertNodeStatusFirstSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	transition, err := s.UpsertNodeStatus(ctx, models.NodePill, true, false, 42, t0)
	require.NoError(t, err)
	assert.True(t, transition.FirstSeen)
	assert.True(t, transition.OnlineChanged)
	assert.True(t, transition.ReadyChanged)

	row, err := s.NodeStatusByID(ctx, models.NodePill)
	require.NoError(t, err)
	assert.True(t, row.Online)
	assert.False(t, row.Ready)
	assert.Equal(t, int64(42), row.Uptime)
	require.NotNil(t, row.LastSeen)
	assert.WithinDuration(t, t0, *row.LastSeen, time.Second)
	require.NotNil(t, row.LastReadyChange)
	assert.WithinDuration(t, t0, *row.LastReadyChange, time.Second)
}

func TestUpsertNodeStatusTouchesChangeOnlyOnFlip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Second)
	t2 := t1.Add(2 * time.Second)

	_, err := s.UpsertNodeStatus(ctx, models.NodeRoom, true, false, 1, t0)
	require.NoError(t, err)

	// ready flips false -> true at t1.
	transition, err := s.UpsertNodeStatus(ctx, models.NodeRoom, true, true, 2, t1)
	require.NoError(t, err)
	assert.True(t, transition.ReadyChanged)
	assert.False(t, transition.OnlineChanged)

	// Heartbeat at t2 repeats the same flags: last_seen advances, the
	// change stamps hold still.
	transition, err = s.UpsertNodeStatus(ctx, models.NodeRoom, true, true, 3, t2)
	require.NoError(t, err)
	assert.False(t, transition.ReadyChanged)
	assert.False(t, transition.OnlineChanged)

	row, err := s.NodeStatusByID(ctx, models.NodeRoom)
	require.NoError(t, err)
	require.NotNil(t, row.LastSeen)
	assert.WithinDuration(t, t2, *row.LastSeen, time.Second)
	require.NotNil(t, row.LastReadyChange)
	assert.WithinDuration(t, t1, *row.LastReadyChange, time.Second)
	require.NotNil(t, row.LastOnlineChange)
	assert.WithinDuration(t, t0, *row.LastOnlineChange, time.Second)
	assert.Equal(t, int64(3), row.Uptime)
}

func TestUpsertNodeStatusRejectsForeignNode(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertNodeStatus(context.Background(), 7, true, true, 0, time.Now())
	require.Error(t, err)
}

func TestNodeStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	statuses, err := s.NodeStatuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	_, err = s.UpsertNodeStatus(ctx, models.NodeRoom, true, true, 10, now)
	require.NoError(t, err)
	_, err = s.UpsertNodeStatus(ctx, models.NodePill, true, false, 20, now)
	require.NoError(t, err)

	statuses, err = s.NodeStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, models.NodePill, statuses[0].NodeID)
	assert.Equal(t, models.NodeRoom, statuses[1].NodeID)

	_, err = s.NodeStatusByID(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}
