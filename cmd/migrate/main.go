package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medconsult-liberia/medconsult/internal/app"
	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/migrations"
)

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadBaseConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		logger.Error("create schema_migrations", slog.Any("error", err))
		os.Exit(1)
	}

	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		logger.Error("list migrations", slog.Any("error", err))
		os.Exit(1)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations.Files, name)
		if err != nil {
			logger.Error("read migration", slog.String("file", name), slog.Any("error", err))
			os.Exit(1)
		}
		applied := false
		err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			logger.Error("apply migration", slog.String("file", name), slog.Any("error", err))
			os.Exit(1)
		}
		if applied {
			logger.Info("migration applied", slog.String("file", name))
		} else {
			logger.Info("migration already applied", slog.String("file", name))
		}
	}
}
