package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pillcell/dispatcher/pkg/services"
	"github.com/pillcell/dispatcher/pkg/store"
)

// writeError maps service- and store-layer errors to HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrPillInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Unexpected service error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
