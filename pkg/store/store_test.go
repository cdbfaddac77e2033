package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client, err := database.NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func seedPatient(t *testing.T, s *Store, name string, room int) *models.Patient {
	t.Helper()
	patient, err := s.CreatePatient(context.Background(), name, room)
	require.NoError(t, err)
	return patient
}

func seedPill(t *testing.T, s *Store, name string, pillType models.PillType, amount int) *models.Pill {
	t.Helper()
	pill, err := s.CreatePill(context.Background(), name, pillType, amount)
	require.NoError(t, err)
	return pill
}

// seedQueue creates a patient, a pill with plenty of stock, and one pending
// queue asking for the given quantity of that pill.
func seedQueue(t *testing.T, s *Store, quantity int) *models.Queue {
	t.Helper()
	patient := seedPatient(t, s, "Alice Park", 3)
	pill := seedPill(t, s, "aspirin", models.PillSolid, 100)
	queue, err := s.CreateQueue(context.Background(), CreateQueueInput{
		PatientID: patient.ID,
		Items:     []CreateQueueItem{{PillID: pill.ID, Quantity: quantity}},
	})
	require.NoError(t, err)
	return queue
}

func mustClaim(t *testing.T, s *Store, queueID int64) {
	t.Helper()
	claimed, err := s.ClaimPending(context.Background(), queueID)
	require.NoError(t, err)
	require.True(t, claimed, "expected to claim queue %d", queueID)
}

func queueStatus(t *testing.T, s *Store, queueID int64) models.QueueStatus {
	t.Helper()
	queue, err := s.GetQueue(context.Background(), queueID)
	require.NoError(t, err)
	return queue.Status
}
