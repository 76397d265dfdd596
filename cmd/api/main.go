// Command api serves published stories, the RSS feed and the admin
// ingestion endpoints.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/app"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/handlers"
	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/logging"
	"github.com/threadjuice/threadjuice/internal/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	flush, err := logging.Setup(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer flush()
	log := zap.S()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Errorw("failed to initialise", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Admin.TokenHash == "" {
		log.Warnw("ADMIN_TOKEN_HASH not set, admin endpoints are disabled")
	}

	// Handlers.
	healthHandler := &handlers.HealthHandler{DB: a.DB}
	storiesHandler := &handlers.StoriesHandler{Stories: a.Stories}
	feedHandler := &handlers.FeedHandler{Stories: a.Stories, BaseURL: cfg.Server.BaseURL}
	adminHandler := &handlers.AdminHandler{
		Pipeline:   a.Pipeline,
		Options:    ingest.OptionsFromConfig(cfg),
		RunTimeout: cfg.Pipeline.RunTimeout,
		Limiter:    a.Limiter,
		Scraper:    a.Scraper,
		Archive:    a.Archive,
	}

	// Router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "If-Modified-Since"},
		ExposedHeaders:   []string{"ETag", "Last-Modified"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public routes.
	r.Get("/api/health", healthHandler.Health)
	r.Get("/api/stories", storiesHandler.List)
	r.Get("/api/stories/{slug}", storiesHandler.Get)
	r.Get("/feed.xml", feedHandler.ServeFeed)

	// Admin actions.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.Admin.TokenHash))

		r.Post("/api/admin/ingest", adminHandler.TriggerIngest)
		r.Post("/api/admin/ingest/url", adminHandler.IngestURL)
		r.Get("/api/admin/quota", adminHandler.Quota)
		r.Get("/api/admin/scraper", adminHandler.ScraperHealth)
		r.Get("/api/admin/archive/{slug}", adminHandler.Snapshot)
	})

	// Server.
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("shutting down server", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	log.Infow("server stopped")
}
