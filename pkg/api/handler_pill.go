package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pillcell/dispatcher/pkg/services"
)

// listPillsHandler handles GET /api/pills.
func (s *Server) listPillsHandler(c *gin.Context) {
	pills, err := s.pills.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pills)
}

// createPillHandler handles POST /api/pills.
func (s *Server) createPillHandler(c *gin.Context) {
	var req CreatePillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	pill, err := s.pills.Create(c.Request.Context(), services.CreatePillInput{
		Name:   req.Name,
		Type:   req.Type,
		Amount: req.Amount,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pill)
}

// adjustPillHandler handles PATCH /api/pills/:id.
func (s *Server) adjustPillHandler(c *gin.Context) {
	pillID, ok := idParam(c)
	if !ok {
		return
	}
	var req AdjustPillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	pill, err := s.pills.AdjustStock(c.Request.Context(), pillID, req.Delta)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pill)
}

// deletePillHandler handles DELETE /api/pills/:id.
func (s *Server) deletePillHandler(c *gin.Context) {
	pillID, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.pills.Delete(c.Request.Context(), pillID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "pill_id": pillID})
}
