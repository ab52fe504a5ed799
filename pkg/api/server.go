// Package api is the thin REST + SSE transport over the execution substrate:
// run lifecycle, session inspection, registry CRUD, checkpoint resolution,
// and memory/artifact access (§6). It owns no domain logic of its own — every
// handler is a direct translation of an HTTP request into a call against the
// registry, executor, checkpoint manager, memory store, or artifact store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/config"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/executor"
	"github.com/meridianflow/meridian/pkg/memory"
	"github.com/meridianflow/meridian/pkg/metrics"
	"github.com/meridianflow/meridian/pkg/registry"
)

// Server wires the gin.Engine to every component the REST surface exposes.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	Registry    *registry.Registry
	Executor    *executor.Executor
	EventLog    *events.Log
	Progress    *events.ProgressStore
	Broadcaster *events.Broadcaster
	Checkpoints *checkpoint.Manager
	Memory      *memory.Store
	Artifacts   *artifact.Store
	Compaction  *artifact.CompactionManager
	SystemCfg   *config.SystemConfig
	Metrics     *metrics.Registry
}

// NewServer builds a Server and registers every route. metrics may be nil,
// in which case /metrics is not mounted and no request is instrumented.
func NewServer(
	reg *registry.Registry,
	exec *executor.Executor,
	eventLog *events.Log,
	progress *events.ProgressStore,
	broadcaster *events.Broadcaster,
	checkpoints *checkpoint.Manager,
	mem *memory.Store,
	artifacts *artifact.Store,
	compaction *artifact.CompactionManager,
	sysCfg *config.SystemConfig,
	metricsReg *metrics.Registry,
) *Server {
	s := &Server{
		engine:      gin.New(),
		Registry:    reg,
		Executor:    exec,
		EventLog:    eventLog,
		Progress:    progress,
		Broadcaster: broadcaster,
		Checkpoints: checkpoints,
		Memory:      mem,
		Artifacts:   artifacts,
		Compaction:  compaction,
		SystemCfg:   sysCfg,
		Metrics:     metricsReg,
	}
	s.engine.Use(gin.Recovery())
	if metricsReg != nil {
		s.engine.Use(s.metricsMiddleware())
	}
	s.setupRoutes()
	return s
}

// metricsMiddleware records per-request counters/histograms keyed by the
// matched route template (not the raw path, to keep label cardinality
// bounded for parameterized routes like /sessions/:id).
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.Metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Handler exposes the underlying http.Handler, chiefly for tests that want
// httptest.NewServer without a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	if s.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	runs := s.engine.Group("/runs")
	runs.POST("", s.createRunHandler)
	runs.GET("/:session_id/status", s.runStatusHandler)
	runs.POST("/:session_id/cancel", s.cancelRunHandler)
	runs.GET("/:session_id/stream", s.streamRunHandler)

	sessions := s.engine.Group("/sessions")
	sessions.GET("", s.listSessionsHandler)
	sessions.GET("/:id", s.getSessionHandler)
	sessions.GET("/:id/evidence", s.getSessionEvidenceHandler)
	sessions.GET("/:id/events/:event_type", s.getSessionEventsByTypeHandler)
	sessions.DELETE("/:id", s.deleteSessionHandler)
	sessions.POST("/:id/trigger-compaction", s.triggerCompactionHandler)

	reg := s.engine.Group("/registries")
	reg.GET("/agents", s.listAgentsHandler)
	reg.GET("/agents/:id", s.getAgentHandler)
	reg.POST("/agents", s.createAgentHandler)
	reg.PUT("/agents/:id", s.updateAgentHandler)
	reg.DELETE("/agents/:id", s.deleteAgentHandler)

	reg.GET("/tools", s.listToolsHandler)
	reg.GET("/tools/:id", s.getToolHandler)
	reg.POST("/tools", s.createToolHandler)
	reg.PUT("/tools/:id", s.updateToolHandler)
	reg.DELETE("/tools/:id", s.deleteToolHandler)

	reg.GET("/model-profiles", s.listModelProfilesHandler)
	reg.GET("/model-profiles/:id", s.getModelProfileHandler)
	reg.POST("/model-profiles", s.createModelProfileHandler)
	reg.PUT("/model-profiles/:id", s.updateModelProfileHandler)
	reg.DELETE("/model-profiles/:id", s.deleteModelProfileHandler)

	reg.GET("/workflows", s.listWorkflowsHandler)
	reg.GET("/workflows/:id", s.getWorkflowHandler)
	reg.POST("/workflows", s.createWorkflowHandler)
	reg.PUT("/workflows/:id", s.updateWorkflowHandler)
	reg.DELETE("/workflows/:id", s.deleteWorkflowHandler)

	reg.GET("/orchestrator", s.getOrchestratorHandler)
	reg.PUT("/orchestrator", s.updateOrchestratorHandler)
	reg.GET("/governance", s.getGovernanceHandler)
	reg.PUT("/governance", s.updateGovernanceHandler)
	reg.GET("/system-config", s.getSystemConfigHandler)
	reg.POST("/reload", s.reloadRegistryHandler)

	cps := s.engine.Group("/checkpoints")
	cps.GET("/pending", s.pendingCheckpointsHandler)
	cps.GET("/:id", s.getCheckpointHandler)
	cps.POST("/:id/resolve", s.resolveCheckpointHandler)
	cps.POST("/:id/cancel", s.cancelCheckpointHandler)
	cps.GET("/session/:session_id", s.sessionCheckpointsHandler)

	mem := s.engine.Group("/memory")
	mem.GET("", s.listMemoryHandler)
	mem.POST("", s.createMemoryHandler)
	mem.GET("/:id", s.getMemoryHandler)
	mem.DELETE("/:id", s.deleteMemoryHandler)
	mem.POST("/retrieve", s.retrieveMemoryHandler)
	mem.POST("/apply-retention", s.applyRetentionHandler)

	arts := s.engine.Group("/artifacts")
	arts.GET("", s.listArtifactsHandler)
	arts.POST("/versions", s.saveArtifactVersionHandler)
	arts.GET("/:id/versions", s.listArtifactVersionsHandler)
	arts.GET("/:id/versions/latest", s.getLatestArtifactVersionHandler)
	arts.GET("/:id/versions/:v", s.getArtifactVersionHandler)
	arts.DELETE("/:id/versions/:v", s.deleteArtifactVersionHandler)
	arts.GET("/:id/lineage/:v", s.getArtifactLineageHandler)
	arts.POST("/:id/apply-version-limit", s.applyVersionLimitHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
