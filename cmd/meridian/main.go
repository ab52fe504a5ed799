// Meridian orchestrator server - drives multi-agent workflow sessions behind
// a REST/SSE API.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/api"
	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/cleanup"
	"github.com/meridianflow/meridian/pkg/config"
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/executor"
	"github.com/meridianflow/meridian/pkg/llmclient"
	"github.com/meridianflow/meridian/pkg/memory"
	"github.com/meridianflow/meridian/pkg/metrics"
	"github.com/meridianflow/meridian/pkg/orchestrator"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/toolsgateway"
	"github.com/meridianflow/meridian/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	sysCfg, err := config.LoadSystemConfig()
	if err != nil {
		log.Fatalf("loading system config: %v", err)
	}
	log.Printf("meridian starting: http_addr=%s registry_path=%s storage_path=%s",
		sysCfg.HTTPAddr, sysCfg.RegistryPath, sysCfg.StoragePath)

	reg, err := registry.New(sysCfg.RegistryPath)
	if err != nil {
		log.Fatalf("loading registry from %s: %v", sysCfg.RegistryPath, err)
	}
	reg.WatchAndReload()

	metricsReg := metrics.New()

	eventLog := events.NewLog(filepath.Join(sysCfg.StoragePath, "events"))
	progress := events.NewProgressStore(0)
	broadcaster := events.NewBroadcaster(0)

	cm, err := checkpoint.New(filepath.Join(sysCfg.StoragePath, "checkpoints"))
	if err != nil {
		log.Fatalf("loading checkpoint store: %v", err)
	}
	sweeper := checkpoint.NewSweeper(cm)

	artifacts := artifact.New(filepath.Join(sysCfg.StoragePath, "artifacts"))
	compaction := artifact.NewCompactionManager(filepath.Join(sysCfg.StoragePath, "compactions"), artifact.CompactionConfig{
		KeepRecentEvents: 20,
	})

	// No memory embedding provider is wired (§1 non-goal: concrete provider
	// SDKs); the store falls back to Jaccard similarity over tokenized
	// content whenever a memory query doesn't request embeddings.
	mem := memory.New(filepath.Join(sysCfg.StoragePath, "memory"), 90, nil)

	compiler := contextpipeline.NewCompiler(
		nil, // built per agent from PipelineDeps below, not held statically
		contextpipeline.HandoffTable{},
		contextpipeline.NewLineageTracker(),
		contextpipeline.NewTiktokenEstimator("cl100k_base"),
		contextpipeline.NopEmitter{},
		logger,
	).WithPipelineDeps(&contextpipeline.PipelineDeps{
		Config:           contextpipeline.DefaultConfig(),
		MemorySource:     memory.PipelineSource{Store: mem},
		ArtifactSource:   artifact.PipelineSource{Store: artifacts},
		Compactor:        compaction,
		CompactionMethod: "rule_based",
	})

	httpLLM := &llmclient.RetryingClient{Inner: llmclient.NewHTTPClient(nil)}
	toolsClient := toolsgateway.NewHTTPClient(30 * time.Second)

	workerLoop := &worker.Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         httpLLM,
		Tools:       toolsClient,
		EventLog:    eventLog,
		Progress:    progress,
		Broadcaster: broadcaster,
		Metrics:     metricsReg,
		Logger:      logger,
	}
	orchLoop := &orchestrator.Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         httpLLM,
		Worker:      workerLoop,
		Checkpoints: cm,
		EventLog:    eventLog,
		Progress:    progress,
		Broadcaster: broadcaster,
		Logger:      logger,
	}

	cleanupDelay := time.Duration(sysCfg.CleanupDelaySecs) * time.Second
	cleanupSvc := cleanup.NewService(progress, broadcaster, cleanupDelay)

	exec := executor.New(reg, orchLoop, artifacts, progress, broadcaster, cleanupSvc, logger).WithMetrics(metricsReg)

	server := api.NewServer(reg, exec, eventLog, progress, broadcaster, cm, mem, artifacts, compaction, sysCfg, metricsReg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	log.Printf("http server listening on %s", sysCfg.HTTPAddr)
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Start(sysCfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}
}
