package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcadia-invest/scaling-engine/internal/database"
	"github.com/arcadia-invest/scaling-engine/pkg/collector"
	"github.com/arcadia-invest/scaling-engine/pkg/engine"
	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/executor"
)

// Server exposes the engine's operational HTTP API: read access to the
// current state, decision and execution history, forecasts, plus the two
// manual override operations.
type Server struct {
	router    *gin.Engine
	collector *collector.Collector
	engine    *engine.Engine
	executor  *executor.Executor
	repo      *database.Repository
	bus       *events.Bus
	addr      string
}

// NewServer creates the API server
func NewServer(col *collector.Collector, eng *engine.Engine, exe *executor.Executor,
	repo *database.Repository, bus *events.Bus, registry *prometheus.Registry, addr string) *Server {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	server := &Server{
		router:    router,
		collector: col,
		engine:    eng,
		executor:  exe,
		repo:      repo,
		bus:       bus,
		addr:      addr,
	}

	server.setupRoutes(registry)
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(registry *prometheus.Registry) {
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api/v1")

	// Current state
	api.GET("/health", s.healthCheck)
	api.GET("/services", s.listServices)
	api.GET("/services/:name/snapshot", s.getSnapshot)
	api.GET("/services/:name/forecast", s.getForecast)

	// History
	api.GET("/services/:name/decisions", s.getDecisions)
	api.GET("/services/:name/executions", s.getExecutions)
	api.GET("/events", s.getEvents)

	// Execution state and manual overrides
	api.GET("/scaling/active", s.getActiveScaling)
	api.GET("/services/:name/capability", s.getCapability)
	api.POST("/services/:name/test-scaling", s.testScaling)
	api.POST("/services/:name/emergency-scale-down", s.emergencyScaleDown)
	api.POST("/services/:name/rollback", s.rollback)
}

// Start starts the server
func (s *Server) Start() error {
	return s.router.Run(s.addr)
}

// Handler returns the underlying HTTP handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	report := s.collector.ValidateMetricsHealth()
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"time":           time.Now(),
		"metrics":        report,
		"dropped_events": s.bus.Dropped(),
	})
}

func (s *Server) listServices(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.AllMetrics())
}

func (s *Server) getSnapshot(c *gin.Context) {
	name := c.Param("name")
	snap, ok := s.collector.ServiceMetrics(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for service"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getForecast(c *gin.Context) {
	name := c.Param("name")
	horizon, err := strconv.Atoi(c.DefaultQuery("horizon_minutes", "30"))
	if err != nil || horizon <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid horizon_minutes"})
		return
	}

	points, err := s.engine.GeneratePrediction(name, horizon)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": name, "points": points})
}

func (s *Server) getDecisions(c *gin.Context) {
	name := c.Param("name")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rows, err := s.repo.GetDecisions(name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getExecutions(c *gin.Context) {
	name := c.Param("name")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rows, err := s.repo.GetExecutions(name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	rows, err := s.repo.GetEvents(c.Query("type"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getActiveScaling(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": s.executor.ActiveScaling()})
}

func (s *Server) getCapability(c *gin.Context) {
	report := s.executor.ValidateScalingCapability(c.Request.Context(), c.Param("name"))
	c.JSON(http.StatusOK, report)
}

type testScalingRequest struct {
	TargetInstances int `json:"target_instances" binding:"required"`
}

func (s *Server) testScaling(c *gin.Context) {
	var req testScalingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := s.executor.TestScalingOperation(c.Request.Context(), c.Param("name"), req.TargetInstances)
	c.JSON(http.StatusOK, report)
}

type emergencyRequest struct {
	TargetInstances int    `json:"target_instances" binding:"required"`
	Reason          string `json:"reason" binding:"required"`
}

func (s *Server) emergencyScaleDown(c *gin.Context) {
	var req emergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := s.executor.EmergencyScaleDown(c.Request.Context(), c.Param("name"), req.TargetInstances, req.Reason)
	// Operator scalings start cooldowns too; the loop must not immediately
	// undo a manual intervention.
	s.engine.RecordExecution(record)
	status := http.StatusOK
	if !record.Success {
		status = http.StatusConflict
	}
	c.JSON(status, record)
}

func (s *Server) rollback(c *gin.Context) {
	record := s.executor.RollbackLastScaling(c.Request.Context(), c.Param("name"))
	s.engine.RecordExecution(record)
	status := http.StatusOK
	if !record.Success {
		status = http.StatusConflict
	}
	c.JSON(status, record)
}
