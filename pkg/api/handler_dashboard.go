package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// dashboardHandler handles GET /api/dashboard — the snapshot the ward UI
// polls: queue in flight, backlog counters, node readiness, audit trail.
func (s *Server) dashboardHandler(c *gin.Context) {
	snapshot, err := s.dashboard.Dashboard(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// lookupHandler handles GET /api/lookup — the reference data the
// new-queue form needs.
func (s *Server) lookupHandler(c *gin.Context) {
	lookup, err := s.dashboard.Lookup(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lookup)
}
