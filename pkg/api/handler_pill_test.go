package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillcell/dispatcher/pkg/models"
)

func TestPillLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/pills", CreatePillRequest{Name: "ibuprofen", Amount: 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pill models.Pill
	decodeJSON(t, rec, &pill)
	assert.Equal(t, models.PillSolid, pill.Type, "type defaults to solid")
	assert.Equal(t, 20, pill.Amount)

	// Correction past zero clamps instead of going negative.
	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/pills/%d", pill.ID), AdjustPillRequest{Delta: -25})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &pill)
	assert.Equal(t, 0, pill.Amount)

	rec = ts.do(t, http.MethodGet, "/api/pills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pills []models.Pill
	decodeJSON(t, rec, &pills)
	require.Len(t, pills, 1)

	path := fmt.Sprintf("/api/pills/%d", pill.ID)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, nil).Code)
}

func TestPillValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body CreatePillRequest
	}{
		{name: "missing name", body: CreatePillRequest{Amount: 5}},
		{name: "negative amount", body: CreatePillRequest{Name: "x", Amount: -1}},
		{name: "bad type", body: CreatePillRequest{Name: "x", Type: "gas", Amount: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/pills", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := ts.do(t, http.MethodPatch, "/api/pills/1", AdjustPillRequest{Delta: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero delta is a validation error")
}

func TestPillDeleteBlockedWhileReferenced(t *testing.T) {
	ts := newTestServer(t)
	patient, pill := seedPatientAndPill(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/queues", CreateQueueRequest{
		PatientID: patient.ID,
		Items:     []CreateQueueItemRequest{{PillID: pill.ID, Quantity: 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/pills/%d", pill.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code,
		"a pill on an existing queue stays for the audit trail")
}
