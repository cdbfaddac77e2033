package api

import "github.com/pillcell/dispatcher/pkg/database"

// CreateQueueResponse is returned by POST /api/queues. QueueNumber is the
// per-day label the ward staff announce; QueueID is the stable identifier
// the nodes report against.
type CreateQueueResponse struct {
	QueueID     int64 `json:"queue_id"`
	QueueNumber int   `json:"queue_number"`
	TargetRoom  int   `json:"target_room"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
	Broker   BrokerHealth           `json:"broker"`
}

// BrokerHealth describes the broker link inside a health response.
type BrokerHealth struct {
	Connected bool `json:"connected"`
}
