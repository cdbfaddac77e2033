package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listPatientsHandler handles GET /api/patients.
func (s *Server) listPatientsHandler(c *gin.Context) {
	patients, err := s.patients.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

// createPatientHandler handles POST /api/patients.
func (s *Server) createPatientHandler(c *gin.Context) {
	var req CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	patient, err := s.patients.Create(c.Request.Context(), req.Name, req.Room)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}
