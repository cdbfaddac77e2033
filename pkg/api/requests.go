package api

// CreateQueueRequest is the body of POST /api/queues.
type CreateQueueRequest struct {
	PatientID int64                    `json:"patient_id"`
	Items     []CreateQueueItemRequest `json:"items"`
}

// CreateQueueItemRequest is one requested pill line.
type CreateQueueItemRequest struct {
	PillID   int64 `json:"pill_id"`
	Quantity int   `json:"quantity"`
}

// CreatePillRequest is the body of POST /api/pills.
type CreatePillRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Amount int    `json:"amount"`
}

// AdjustPillRequest is the body of PATCH /api/pills/:id. Delta is signed:
// positive restocks, negative corrects; stock clamps at zero.
type AdjustPillRequest struct {
	Delta int `json:"delta"`
}

// CreatePatientRequest is the body of POST /api/patients.
type CreatePatientRequest struct {
	Name string `json:"name"`
	Room int    `json:"room"`
}
