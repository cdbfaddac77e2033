package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/config"
	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/dispatch"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/services"
	"github.com/pillcell/dispatcher/pkg/store"
)

type fakeTrigger struct {
	calls atomic.Int32
}

func (f *fakeTrigger) Dispatch(context.Context) { f.calls.Add(1) }

type fakeBrokerStatus struct {
	up bool
}

func (f *fakeBrokerStatus) Connected() bool { return f.up }

// testServer assembles the API over an in-memory database with a fake
// dispatch trigger, so handler tests never touch a broker.
type testServer struct {
	*Server
	store   *store.Store
	trigger *fakeTrigger
	broker  *fakeBrokerStatus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client, err := database.NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(client)
	tracker := dispatch.NewTracker(st, config.DefaultDispatchConfig(), logger)
	trigger := &fakeTrigger{}
	brokerStatus := &fakeBrokerStatus{up: true}

	srv := NewServer(
		client,
		brokerStatus,
		services.NewQueueService(st, trigger, logger),
		services.NewPillService(st, logger),
		services.NewPatientService(st, logger),
		services.NewDashboardService(st, tracker, logger),
		logger,
	)
	return &testServer{Server: srv, store: st, trigger: trigger, broker: brokerStatus}
}

// do runs one request against the server and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
}

func seedPatientAndPill(t *testing.T, ts *testServer) (*models.Patient, *models.Pill) {
	t.Helper()
	ctx := context.Background()
	patient, err := ts.store.CreatePatient(ctx, "Alice Park", 4)
	require.NoError(t, err)
	pill, err := ts.store.CreatePill(ctx, "aspirin", models.PillSolid, 10)
	require.NoError(t, err)
	return patient, pill
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dispatcher_")
}

func TestUnknownRouteIs404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
