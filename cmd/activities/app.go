package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/audit"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/config"
	"github.com/talgya/serenissima/internal/engine"
	"github.com/talgya/serenissima/internal/kin"
	"github.com/talgya/serenissima/internal/logging"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/resolver"
	"github.com/talgya/serenissima/internal/scheduler"
)

// app is everything a command needs, built from the configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   persistence.Store
	catalog *catalog.Catalog
	audit   audit.Recorder
	engine  *engine.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", cfg.DBPath)

	var rec audit.Recorder = audit.Discard{}
	if cfg.AuditDir != "" {
		if err := os.MkdirAll(cfg.AuditDir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit dir: %w", err)
		}
		rec = audit.NewWriter(cfg.AuditDir, "activities")
	}

	timeout := cfg.Tuning.ExternalTimeout()
	var finder pathfind.Finder = pathfind.NewStraight()
	if cfg.PathfinderURL != "" {
		finder = pathfind.NewClient(cfg.PathfinderURL, timeout)
	} else {
		logger.Warn("PATHFINDER_URL not set, walking in straight lines")
	}

	var sender kin.Sender
	if c := kin.NewClient(cfg.KinURL, cfg.KinBlueprint, cfg.KinAPIKey, timeout); c != nil {
		sender = c
	} else if o := kin.NewOpenAISender(cfg.OpenAIKey, ""); o != nil {
		sender = o
		logger.Info("AI personas voiced through OpenAI")
	} else {
		logger.Warn("no AI dialogue key set, AI citizens follow the rules only")
	}

	cal := agents.Calendar{Location: loc, Catalog: cat}
	sched := scheduler.New(finder, sender, cat, cal, cfg.Tuning, logger)
	res := resolver.New(cat, cfg.Tuning, logger)
	eng := engine.New(db, sched, res, cat, engine.Options{
		Workers:  cfg.Workers,
		Cooldown: cfg.Tuning.FailureCooldown(),
		Audit:    rec,
		Logger:   logger,
	})

	return &app{cfg: cfg, logger: logger, store: db, catalog: cat, audit: rec, engine: eng}, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.logger.Error("close audit trail", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}

func (a *app) logTick(stats engine.TickStats) {
	a.logger.Info("tick done",
		"processed", stats.Resolve.Processed,
		"failed", stats.Resolve.Failed,
		"created", stats.Schedule.Created,
		"skipped", stats.Schedule.Skipped,
		"took", stats.Took.Round(time.Millisecond))
}
