// Package db manages database connections and runs the embedded migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/threadjuice/threadjuice/internal/config"
)

//go:embed migrations
var migrations embed.FS

// Connect creates a pgxpool connection pool and runs pending migrations.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	zap.S().Infow("database connected", "host", cfg.Host, "port", cfg.Port, "db", cfg.DBName)

	if err := migrate(ctx, pgExecer{pool}, "postgres", "$1"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: migrations: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens (or creates) a SQLite database at path and runs pending
// migrations. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database, and SQLite
	// serialises writers anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: sqlite pragma: %w", err)
	}

	if err := migrate(ctx, sqlExecer{conn}, "sqlite", "?"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: migrations: %w", err)
	}

	zap.S().Infow("sqlite database opened", "path", path)
	return conn, nil
}

// execer is the slice of a database handle the migration runner needs.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
	Exists(ctx context.Context, query string, args ...any) (bool, error)
}

type pgExecer struct{ pool *pgxpool.Pool }

func (e pgExecer) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.pool.Exec(ctx, query, args...)
	return err
}

func (e pgExecer) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	err := e.pool.QueryRow(ctx, query, args...).Scan(&exists)
	return exists, err
}

type sqlExecer struct{ db *sql.DB }

func (e sqlExecer) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.db.ExecContext(ctx, query, args...)
	return err
}

func (e sqlExecer) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	err := e.db.QueryRowContext(ctx, query, args...).Scan(&exists)
	return exists, err
}

// migrate executes the embedded SQL files for dialect in sorted order,
// recording each in a _migrations table so it is applied once.
func migrate(ctx context.Context, db execer, dialect, placeholder string) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS _migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`
	if err := db.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("create tracker table: %w", err)
	}

	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		exists, err := db.Exists(ctx, "SELECT EXISTS(SELECT 1 FROM _migrations WHERE filename = "+placeholder+")", f)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if exists {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		zap.S().Infow("applying migration", "dialect", dialect, "file", f)

		if err := db.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if err := db.Exec(ctx, "INSERT INTO _migrations (filename) VALUES ("+placeholder+")", f); err != nil {
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		applied++
	}

	zap.S().Infow("migrations complete", "dialect", dialect, "files", len(files), "applied", applied)
	return nil
}
