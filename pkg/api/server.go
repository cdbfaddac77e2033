// Package api exposes the collaborator HTTP surface of the dispatcher:
// queue creation and inspection for the ward staff, reference-data
// management (pills, patients), and the operational endpoints (dashboard,
// health, metrics). The dispatch core itself has no HTTP surface; this
// API only feeds it work and reads its state.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/services"
)

// Server is the gin HTTP server fronting the dispatcher.
type Server struct {
	db        *database.Client
	broker    broker.StatusReporter
	queues    *services.QueueService
	pills     *services.PillService
	patients  *services.PatientService
	dashboard *services.DashboardService
	logger    *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the API server to its services and registers routes.
func NewServer(
	db *database.Client,
	brokerStatus broker.StatusReporter,
	queues *services.QueueService,
	pills *services.PillService,
	patients *services.PatientService,
	dashboard *services.DashboardService,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:        db,
		broker:    brokerStatus,
		queues:    queues,
		pills:     pills,
		patients:  patients,
		dashboard: dashboard,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/health", s.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/queues", s.createQueueHandler)
		api.GET("/queues", s.listQueuesHandler)
		api.GET("/queues/:id", s.getQueueHandler)
		api.DELETE("/queues/:id", s.deleteQueueHandler)

		api.GET("/pills", s.listPillsHandler)
		api.POST("/pills", s.createPillHandler)
		api.PATCH("/pills/:id", s.adjustPillHandler)
		api.DELETE("/pills/:id", s.deletePillHandler)

		api.GET("/patients", s.listPatientsHandler)
		api.POST("/patients", s.createPatientHandler)

		api.GET("/lookup", s.lookupHandler)
		api.GET("/dashboard", s.dashboardHandler)
	}

	s.engine = engine
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request in the process's slog idiom.
// The dashboard polls continuously, so successes stay at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := s.logger.Debug
		if c.Writer.Status() >= http.StatusInternalServerError {
			log = s.logger.Error
		}
		log("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
