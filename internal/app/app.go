// Package app wires the configured stores, clients and the ingestion
// pipeline shared by the api, worker and ingest commands.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/ai"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/db"
	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/media"
	"github.com/threadjuice/threadjuice/internal/models"
	"github.com/threadjuice/threadjuice/internal/persona"
	"github.com/threadjuice/threadjuice/internal/ratelimit"
	"github.com/threadjuice/threadjuice/internal/scraper"
	"github.com/threadjuice/threadjuice/internal/sources"
	"github.com/threadjuice/threadjuice/internal/storage"
	"github.com/threadjuice/threadjuice/internal/transform"
)

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds every long-lived dependency.
type App struct {
	Config   config.Config
	Stories  ingest.Repository
	DB       Pinger
	Limiter  *ratelimit.Limiter
	Reddit   *sources.Reddit
	Twitter  *sources.Twitter
	Scraper  *scraper.Scraper
	Archive  *storage.Client
	Service  *ingest.Service
	Pipeline *ingest.Pipeline

	closers []func()
}

// New opens the story store and builds the pipeline from cfg. Close must be
// called to release the store and the quota backend.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLimiter(); err != nil {
		a.Close()
		return nil, err
	}

	gen, err := ai.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if gen == nil {
		zap.S().Warnw("app: no AI provider configured, stories will be simulated", "provider", cfg.AI.Provider)
	}

	personas := persona.Default()
	if cfg.Pipeline.PersonaFile != "" {
		if personas, err = persona.Load(cfg.Pipeline.PersonaFile); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Archive, err = storage.NewClient(ctx, cfg.S3)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Reddit = sources.NewReddit(cfg.Reddit, a.Limiter)
	a.Twitter = sources.NewTwitter(cfg.Twitter, a.Limiter)
	a.Scraper = scraper.New(cfg.Scraper, a.Reddit)

	var archive ingest.Archiver
	if a.Archive.Configured() {
		archive = a.Archive
	}
	a.Service = ingest.NewService(a.Stories, archive)

	deps := ingest.Deps{
		Reddit:      a.Reddit,
		Scraper:     a.Scraper,
		Transformer: transform.New(gen, a.Limiter),
		Enricher:    a.enricher(),
		Personas:    personas,
		Stories:     a.Stories,
		Service:     a.Service,
	}
	if a.Twitter.Configured() {
		deps.Twitter = a.Twitter
	}
	a.Pipeline = ingest.NewPipeline(deps)

	zap.S().Infow("app: ready",
		"db", cfg.DB.Driver,
		"reddit_oauth", a.Reddit.OAuth(),
		"twitter", a.Twitter.Configured(),
		"archive", a.Archive.Configured(),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.DB.Driver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, a.Config.DB.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Stories = models.NewSQLiteStoryStore(conn)
		a.DB = sqlPinger{conn}
		zap.S().Infow("app: sqlite store opened", "path", a.Config.DB.Path)
	case "postgres", "":
		pool, err := db.Connect(ctx, a.Config.DB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.Stories = models.NewStoryStore(pool)
		a.DB = pool
	default:
		return fmt.Errorf("app: unknown DB_DRIVER %q", a.Config.DB.Driver)
	}
	return nil
}

func (a *App) openLimiter() error {
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if url := a.Config.Redis.URL; url != "" {
		rc, err := ratelimit.NewRedisCounter(url)
		if err != nil {
			return fmt.Errorf("app: redis quota backend: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		counter = rc
		zap.S().Infow("app: quota counters in redis")
	}
	a.Limiter = ratelimit.New(counter, a.Config.Quotas)
	return nil
}

func (a *App) enricher() *media.Enricher {
	mc := a.Config.Media

	var photos media.PhotoSearcher
	if mc.PexelsKey != "" {
		photos = media.NewPexels(mc.PexelsKey, "", a.Limiter)
	}
	var gifs []media.GIFSearcher
	if mc.KlipyKey != "" {
		gifs = append(gifs, media.NewKlipy(mc.KlipyKey, "", a.Limiter))
	}
	if mc.GiphyKey != "" {
		gifs = append(gifs, media.NewGiphy(mc.GiphyKey, "", a.Limiter))
	}
	return media.NewEnricher(photos, gifs, mc.DefaultImages)
}

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
