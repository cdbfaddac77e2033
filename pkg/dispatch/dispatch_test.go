package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/config"
	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// fakePublisher records publishes and can be told to fail per topic.
type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	fail     map[string]error
}

type published struct {
	topic   string
	payload []byte
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[topic]; ok {
		return err
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) failTopic(topic string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	f.fail[topic] = err
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakePublisher) byTopic(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

// fixture assembles the whole dispatch core over an in-memory database.
type fixture struct {
	store      *store.Store
	tracker    *Tracker
	dispatcher *Dispatcher
	joiner     *Joiner
	consumer   *Consumer
	pub        *fakePublisher
}

func testConfig() config.DispatchConfig {
	cfg := config.DefaultDispatchConfig()
	cfg.ReadyDebounce = 0 // individual tests opt back in
	return cfg
}

func newFixture(t *testing.T, cfg config.DispatchConfig) *fixture {
	t.Helper()
	client, err := database.NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New(client)
	tracker := NewTracker(s, cfg, logger)
	pub := &fakePublisher{}
	dispatcher := NewDispatcher(s, pub, broker.NewTopics("disp"), tracker, logger)
	joiner := NewJoiner(s, tracker, dispatcher, logger)
	consumer := NewConsumer(s, tracker, joiner, dispatcher, logger)
	return &fixture{
		store:      s,
		tracker:    tracker,
		dispatcher: dispatcher,
		joiner:     joiner,
		consumer:   consumer,
		pub:        pub,
	}
}

// markBothReady upserts both nodes online+ready as of seenAt.
func markBothReady(t *testing.T, fix *fixture, seenAt time.Time) {
	t.Helper()
	ctx := context.Background()
	for _, nodeID := range []int{models.NodePill, models.NodeRoom} {
		_, err := fix.store.UpsertNodeStatus(ctx, nodeID, true, true, 100, seenAt)
		require.NoError(t, err)
	}
}

// enqueue creates a patient, a stocked pill, and one pending queue with
// the requested quantity.
func enqueue(t *testing.T, fix *fixture, quantity int) *models.Queue {
	t.Helper()
	ctx := context.Background()
	patient, err := fix.store.CreatePatient(ctx, "Alice Park", 3)
	require.NoError(t, err)
	pill, err := fix.store.CreatePill(ctx, "aspirin", models.PillSolid, 100)
	require.NoError(t, err)
	queue, err := fix.store.CreateQueue(ctx, store.CreateQueueInput{
		PatientID: patient.ID,
		Items:     []store.CreateQueueItem{{PillID: pill.ID, Quantity: quantity}},
	})
	require.NoError(t, err)
	return queue
}

func currentStatus(t *testing.T, fix *fixture, queueID int64) models.QueueStatus {
	t.Helper()
	queue, err := fix.store.GetQueue(context.Background(), queueID)
	require.NoError(t, err)
	return queue.Status
}

// completionPayload renders the evt payload a node would publish.
func completionPayload(queueID int64, status string) []byte {
	if status == "" {
		return []byte(fmt.Sprintf(`{"queue_id":%d,"done":1}`, queueID))
	}
	return []byte(fmt.Sprintf(`{"queue_id":%d,"done":1,"status":%q}`, queueID, status))
}
