package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docbot-ai/platform/internal/http/handlers"
	httpmiddleware "github.com/docbot-ai/platform/internal/http/middleware"
	"github.com/docbot-ai/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BotHandler         *handlers.BotHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.BotHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/bots", func(r chi.Router) {
		r.Post("/", cfg.BotHandler.CreateBot)
		r.Get("/", cfg.BotHandler.ListBots)
		r.Route("/{botID}", func(r chi.Router) {
			r.Post("/schedule", cfg.BotHandler.UploadSchedule)
			r.Post("/document", cfg.BotHandler.UploadDocument)
			r.Get("/start", cfg.BotHandler.Start)
			r.Post("/chat", cfg.BotHandler.Chat)
			r.Post("/chat/stream", cfg.BotHandler.ChatStream)
		})
	})

	return r
}
