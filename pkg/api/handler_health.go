package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pillcell/dispatcher/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. The database decides healthy vs
// unhealthy; a downed broker link only degrades, because the cell still
// accepts queue rows and dispatches them once the link returns.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	httpStatus := http.StatusOK
	dbHealth, err := s.db.Health(ctx)
	if err != nil {
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	brokerUp := s.broker != nil && s.broker.Connected()
	if status == healthStatusHealthy && !brokerUp {
		status = healthStatusDegraded
	}

	c.JSON(httpStatus, HealthResponse{
		Status:   status,
		Version:  version.GitCommit,
		Database: dbHealth,
		Broker:   BrokerHealth{Connected: brokerUp},
	})
}
