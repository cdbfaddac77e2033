package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pillcell/dispatcher/pkg/services"
)

// createQueueHandler handles POST /api/queues.
func (s *Server) createQueueHandler(c *gin.Context) {
	var req CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	items := make([]services.QueueItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = services.QueueItemInput{PillID: item.PillID, Quantity: item.Quantity}
	}
	queue, err := s.queues.Create(c.Request.Context(), services.CreateQueueInput{
		PatientID: req.PatientID,
		Items:     items,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateQueueResponse{
		QueueID:     queue.ID,
		QueueNumber: queue.QueueNumber,
		TargetRoom:  queue.TargetRoom,
	})
}

// listQueuesHandler handles GET /api/queues.
func (s *Server) listQueuesHandler(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	queues, err := s.queues.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queues)
}

// getQueueHandler handles GET /api/queues/:id.
func (s *Server) getQueueHandler(c *gin.Context) {
	queueID, ok := idParam(c)
	if !ok {
		return
	}
	detail, err := s.queues.Get(c.Request.Context(), queueID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// deleteQueueHandler handles DELETE /api/queues/:id — the operator abort.
// The queue row and its items go; the audit events stay.
func (s *Server) deleteQueueHandler(c *gin.Context) {
	queueID, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.queues.Delete(c.Request.Context(), queueID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "queue_id": queueID})
}

// idParam parses the :id path segment, writing the 400 itself when the
// segment is not a positive integer.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
