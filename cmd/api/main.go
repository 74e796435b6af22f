package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/docbot-ai/platform/internal/api/router"
	appconfig "github.com/docbot-ai/platform/internal/config"
	"github.com/docbot-ai/platform/internal/conversation"
	"github.com/docbot-ai/platform/internal/http/handlers"
	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/internal/retrieval"
	"github.com/docbot-ai/platform/internal/tenancy"
	"github.com/docbot-ai/platform/internal/tenant"
	"github.com/docbot-ai/platform/pkg/logging"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting docbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
	)

	registry, err := tenant.NewRegistry(cfg.DataDir, logger.Component("tenant"))
	if err != nil {
		logger.Error("failed to initialize bot registry", "error", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(promRegistry)
	retrievalMetrics := metrics.NewRetrievalMetrics(promRegistry)
	plannerMetrics := metrics.NewPlannerMetrics(promRegistry)

	var indexer *retrieval.Service
	if cfg.OpenAIAPIKey != "" {
		indexer = retrieval.New(
			openai.NewClient(cfg.OpenAIAPIKey),
			cfg.EmbeddingModel,
			logger.Component("retrieval"),
			retrieval.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
			retrieval.WithWeights(retrieval.Weights{Dense: cfg.DenseWeight, Sparse: cfg.SparseWeight}),
			retrieval.WithMetrics(retrievalMetrics),
		)
	} else {
		logger.Warn("no OPENAI_API_KEY configured; document indexing disabled")
	}

	locks := tenancy.NewLocks()
	manager := conversation.NewManager(registry, indexer, locks, conversation.ManagerConfig{
		Model:          cfg.PlannerModel,
		MaxSteps:       cfg.PlannerMaxSteps,
		StepTimeout:    cfg.PlannerTimeout,
		TopK:           cfg.RetrievalTopK,
		FallbackAPIKey: cfg.OpenAIAPIKey,
	}, logger.Component("conversation"), plannerMetrics, bookingMetrics)

	botHandler := handlers.NewBotHandler(registry, manager, indexer, locks, bookingMetrics, logger.Component("http"))

	r := router.New(&router.Config{
		Logger:             logger,
		BotHandler:         botHandler,
		MetricsHandler:     promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // streaming turns outlive a normal request
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
