// Command worker runs the ThreadJuice ingestion pipeline on a cron schedule.
// Each run collects posts from Reddit and Twitter, ranks them by drama,
// rewrites the best ones into stories and stores them.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/app"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/logging"
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

	log.Infow("worker: starting threadjuice worker")

	// Create a root context that is cancelled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Errorw("worker: initialisation failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	opts := ingest.OptionsFromConfig(cfg)
	runTimeout := cfg.Pipeline.RunTimeout
	if runTimeout <= 0 {
		runTimeout = time.Hour
	}

	// Track in-flight jobs for graceful shutdown.
	var wg sync.WaitGroup

	runIngestion := func(trigger string) {
		jobCtx, jobCancel := context.WithTimeout(ctx, runTimeout)
		defer jobCancel()

		log.Infow("worker: ingestion triggered", "trigger", trigger)
		if _, ok := a.Pipeline.RunExclusive(jobCtx, opts); !ok {
			log.Warnw("worker: previous run still in progress, skipping", "trigger", trigger)
		}
	}

	// Set up cron scheduler (standard 5-field cron expressions).
	c := cron.New()

	_, err = c.AddFunc(cfg.Pipeline.Schedule, func() {
		wg.Add(1)
		defer wg.Done()
		runIngestion("cron")
	})
	if err != nil {
		log.Errorw("worker: add ingestion cron", "schedule", cfg.Pipeline.Schedule, "err", err)
		os.Exit(1)
	}

	// Quota snapshot: daily just before the UTC day window rolls over.
	_, err = c.AddFunc("55 23 * * *", func() {
		wg.Add(1)
		defer wg.Done()

		usage, err := a.Limiter.Status(ctx)
		if err != nil {
			log.Warnw("cron: quota status", "err", err)
			return
		}
		for _, u := range usage {
			log.Infow("cron: quota usage",
				"service", u.Service,
				"daily_used", u.DailyUsed,
				"daily_limit", u.DailyLimit,
				"monthly_used", u.MonthlyUsed,
				"monthly_limit", u.MonthlyLimit,
			)
		}
	})
	if err != nil {
		log.Errorw("worker: add quota cron", "err", err)
		os.Exit(1)
	}

	c.Start()
	log.Infow("worker: cron scheduler started",
		"jobs", len(c.Entries()),
		"schedule", cfg.Pipeline.Schedule,
	)

	// Run once on startup so a fresh deploy does not wait for the schedule.
	wg.Add(1)
	go func() {
		defer wg.Done()

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
		runIngestion("startup")
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Infow("worker: received shutdown signal", "signal", sig.String())

	// Stop accepting new cron jobs.
	cronCtx := c.Stop()

	// Cancel the root context to signal all in-flight jobs to stop.
	cancel()

	select {
	case <-cronCtx.Done():
		log.Infow("worker: cron scheduler stopped")
	case <-time.After(30 * time.Second):
		log.Warnw("worker: cron scheduler stop timed out")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infow("worker: all in-flight jobs complete")
	case <-time.After(60 * time.Second):
		log.Warnw("worker: timed out waiting for in-flight jobs")
	}

	log.Infow("worker: shutdown complete")
}
