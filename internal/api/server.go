package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulseguard/pulseguard/internal/alerter"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/breaker"
	"github.com/pulseguard/pulseguard/internal/incident"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/pulseguard/pulseguard/internal/version"
	"github.com/rs/zerolog"
)

// Server provides the HTTP API: fault ingestion, alert lifecycle,
// incident workflow, and operational introspection.
type Server struct {
	log       zerolog.Logger
	pipeline  *alerter.Pipeline
	breakers  *breaker.Registry
	auditRing *audit.RingStore
	registry  *prometheus.Registry
	port      string
	startTime time.Time
	http      *http.Server
}

// NewServer creates the API server.
func NewServer(log zerolog.Logger, pipeline *alerter.Pipeline, breakers *breaker.Registry, auditRing *audit.RingStore, registry *prometheus.Registry, port string) *Server {
	return &Server{
		log:       log.With().Str("component", "api").Logger(),
		pipeline:  pipeline,
		breakers:  breakers,
		auditRing: auditRing,
		registry:  registry,
		port:      port,
		startTime: time.Now(),
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/faults", s.handleSubmitFault)
		apiGroup.GET("/alerts", s.handleListAlerts)
		apiGroup.GET("/alerts/:id", s.handleGetAlert)
		apiGroup.POST("/alerts/:id/acknowledge", s.handleAcknowledge)
		apiGroup.POST("/alerts/:id/resolve", s.handleResolveAlert)
		apiGroup.GET("/incidents", s.handleListIncidents)
		apiGroup.GET("/incidents/:id", s.handleGetIncident)
		apiGroup.POST("/incidents/:id/status", s.handleIncidentStatus)
		apiGroup.POST("/incidents/:id/resolve", s.handleIncidentResolve)
		apiGroup.POST("/incidents/:id/steps/complete", s.handleCompleteStep)
		apiGroup.GET("/breakers", s.handleBreakers)
		apiGroup.GET("/audit", s.handleAudit)
	}

	addr := ":" + s.port
	s.log.Info().Str("address", addr).Msg("starting API server")

	s.http = &http.Server{Addr: addr, Handler: router}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type faultRequest struct {
	Type  string `json:"type" binding:"required"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Context map[string]string `json:"context"`
}

// handleSubmitFault is the sole entry point external detectors call.
func (s *Server) handleSubmitFault(c *gin.Context) {
	var req faultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	alert, outcome := s.pipeline.SubmitFault(c.Request.Context(), types.Fault{
		Type:    req.Type,
		Message: req.Error.Message,
		Context: req.Context,
	})

	c.JSON(http.StatusCreated, gin.H{
		"alert":   alert,
		"outcome": outcome,
	})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	status := types.AlertStatus(c.Query("status"))
	c.JSON(http.StatusOK, gin.H{"alerts": s.pipeline.Alerts().List(status)})
}

func (s *Server) handleGetAlert(c *gin.Context) {
	alert, ok := s.pipeline.Alerts().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

type actorRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

func (s *Server) handleAcknowledge(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	alert, err := s.pipeline.Acknowledge(c.Request.Context(), c.Param("id"), req.Actor, req.Note)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	alert, err := s.pipeline.Resolve(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleListIncidents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"incidents": s.pipeline.Incidents().List()})
}

func (s *Server) handleGetIncident(c *gin.Context) {
	inc, ok := s.pipeline.Incidents().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	sla, _ := s.pipeline.Incidents().SLACompliance(inc.ID)
	c.JSON(http.StatusOK, gin.H{"incident": inc, "sla_compliance": sla})
}

type incidentStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor" binding:"required"`
	Notes  string `json:"notes"`
}

func (s *Server) handleIncidentStatus(c *gin.Context) {
	var req incidentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	inc, err := s.pipeline.Incidents().UpdateStatus(c.Request.Context(), c.Param("id"), types.IncidentStatus(req.Status), req.Actor, req.Notes)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, incident.ErrInvalidTransition) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inc)
}

type incidentResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Actor      string `json:"actor" binding:"required"`
}

func (s *Server) handleIncidentResolve(c *gin.Context) {
	var req incidentResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	inc, err := s.pipeline.Incidents().Resolve(c.Request.Context(), c.Param("id"), req.Resolution, req.Actor)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inc)
}

type completeStepRequest struct {
	StepIndex int    `json:"step_index"`
	Actor     string `json:"actor" binding:"required"`
	Note      string `json:"note"`
}

func (s *Server) handleCompleteStep(c *gin.Context) {
	var req completeStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	inc, err := s.pipeline.Incidents().CompleteStep(c.Request.Context(), c.Param("id"), req.StepIndex, req.Actor, req.Note)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, incident.ErrNoPendingStep) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (s *Server) handleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.breakers.Snapshot()})
}

func (s *Server) handleAudit(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": s.auditRing.Recent(limit)})
}

// handleHealth returns service health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.GetVersion(),
		"uptime":  time.Since(s.startTime).String(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
