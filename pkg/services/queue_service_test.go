package services

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

type fakeTrigger struct {
	calls atomic.Int32
}

func (f *fakeTrigger) Dispatch(context.Context) { f.calls.Add(1) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	client, err := database.NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return store.New(client)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedReferenceData(t *testing.T, s *store.Store) (*models.Patient, *models.Pill) {
	t.Helper()
	ctx := context.Background()
	patient, err := s.CreatePatient(ctx, "Alice Park", 3)
	require.NoError(t, err)
	pill, err := s.CreatePill(ctx, "aspirin", models.PillSolid, 10)
	require.NoError(t, err)
	return patient, pill
}

func TestQueueServiceCreateValidation(t *testing.T) {
	s := newTestStore(t)
	trigger := &fakeTrigger{}
	svc := NewQueueService(s, trigger, discardLogger())
	patient, pill := seedReferenceData(t, s)

	tests := []struct {
		name  string
		input CreateQueueInput
	}{
		{name: "missing patient", input: CreateQueueInput{Items: []QueueItemInput{{PillID: pill.ID, Quantity: 1}}}},
		{name: "no items", input: CreateQueueInput{PatientID: patient.ID}},
		{name: "zero quantity", input: CreateQueueInput{PatientID: patient.ID, Items: []QueueItemInput{{PillID: pill.ID}}}},
		{name: "missing pill", input: CreateQueueInput{PatientID: patient.ID, Items: []QueueItemInput{{Quantity: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			assert.True(t, IsValidationError(err), "want validation error, got %v", err)
		})
	}
	assert.Zero(t, trigger.calls.Load(), "invalid input must not trigger dispatch")
}

func TestQueueServiceCreateTriggersDispatch(t *testing.T) {
	s := newTestStore(t)
	trigger := &fakeTrigger{}
	svc := NewQueueService(s, trigger, discardLogger())
	patient, pill := seedReferenceData(t, s)

	queue, err := svc.Create(context.Background(), CreateQueueInput{
		PatientID: patient.ID,
		Items:     []QueueItemInput{{PillID: pill.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.QueuePending, queue.Status)
	assert.Equal(t, int32(1), trigger.calls.Load())
}

func TestQueueServiceCreatePassesThroughStockErrors(t *testing.T) {
	s := newTestStore(t)
	trigger := &fakeTrigger{}
	svc := NewQueueService(s, trigger, discardLogger())
	patient, pill := seedReferenceData(t, s)

	_, err := svc.Create(context.Background(), CreateQueueInput{
		PatientID: patient.ID,
		Items:     []QueueItemInput{{PillID: pill.ID, Quantity: 100}},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Zero(t, trigger.calls.Load())
}

func TestQueueServiceGetIncludesEvents(t *testing.T) {
	s := newTestStore(t)
	svc := NewQueueService(s, &fakeTrigger{}, discardLogger())
	patient, pill := seedReferenceData(t, s)

	queue, err := svc.Create(context.Background(), CreateQueueInput{
		PatientID: patient.ID,
		Items:     []QueueItemInput{{PillID: pill.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	detail, err := svc.Get(context.Background(), queue.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.ID, detail.ID)
	require.Len(t, detail.Events, 1)
	assert.Equal(t, models.EventCreated, detail.Events[0].Event)

	_, err = svc.Get(context.Background(), 999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueueServiceDelete(t *testing.T) {
	s := newTestStore(t)
	trigger := &fakeTrigger{}
	svc := NewQueueService(s, trigger, discardLogger())
	patient, pill := seedReferenceData(t, s)

	queue, err := svc.Create(context.Background(), CreateQueueInput{
		PatientID: patient.ID,
		Items:     []QueueItemInput{{PillID: pill.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), queue.ID))
	assert.Equal(t, int32(2), trigger.calls.Load(), "create and delete both nudge the dispatcher")
	require.ErrorIs(t, svc.Delete(context.Background(), queue.ID), store.ErrNotFound)
}
