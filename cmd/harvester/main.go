package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/listing-harvester/internal/config"
	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/fetch"
	"github.com/user/listing-harvester/internal/monitoring"
	"github.com/user/listing-harvester/internal/pipeline"
	"github.com/user/listing-harvester/internal/registry"
	"github.com/user/listing-harvester/internal/retry"
	"github.com/user/listing-harvester/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	targets, err := registry.Select(cfg.Domains, cfg.MaxDomains)
	if err != nil {
		logger.Fatal("could not resolve targets", zap.Error(err))
	}
	logger.Info("starting harvest",
		zap.Int("targets", len(targets)),
		zap.Bool("browser_mode", cfg.BrowserMode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	var pgStore *storage.PostgresStore
	var redisStore *storage.RedisStore
	if cfg.SaveToDB {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pgStore.Close()
		redisStore = storage.NewRedisStore(cfg.RedisAddr)
	}

	opts := pipeline.Options{
		Workers:        cfg.Workers,
		MaxPages:       cfg.MaxPagesPerSite,
		MaxLinks:       cfg.MaxLinksPerSite,
		Policy:         retry.New(cfg.MaxRetries),
		RequestsPerSec: cfg.RequestsPerSec,
		Snapshot: func(run *domain.RunResult) {
			if err := writeSnapshot(cfg.OutputFile, run); err != nil {
				logger.Warn("failed to write snapshot", zap.Error(err))
			}
		},
	}
	if redisStore != nil {
		opts.SkipLink = func(ctx context.Context, url string) bool {
			recent, err := redisStore.IsRecentlyHarvested(ctx, url)
			return err == nil && recent
		}
	}

	var orch *pipeline.Orchestrator
	if cfg.BrowserMode {
		factory := func(target domain.CrawlTarget) (fetch.Session, error) {
			return fetch.NewBrowserClient(fetch.BrowserOptions{
				Headless:      true,
				Timeout:       cfg.PageTimeout(),
				Screenshots:   cfg.DebugScreenshots,
				ScreenshotDir: "screenshots",
			}, logger)
		}
		orch = pipeline.NewSequential(factory, opts, metrics, logger)
	} else {
		client := fetch.NewHTTPClient(cfg.PageTimeout(), logger)
		orch = pipeline.NewParallel(client, opts, metrics, logger)
	}

	started := time.Now()
	run, runErr := orch.Run(ctx, targets)
	if run == nil {
		logger.Fatal("harvest aborted", zap.Error(runErr))
	}

	if err := writeSnapshot(cfg.OutputFile, run); err != nil {
		logger.Error("failed to write output file", zap.Error(err))
	}

	if cfg.SaveToDB {
		persistRun(ctx, run, pgStore, redisStore, logger)
	}

	logger.Info("harvest finished",
		zap.Int("completed", run.Completed()),
		zap.Int("failed", run.Failed()),
		zap.Duration("took", time.Since(started)))
	if runErr != nil {
		logger.Warn("run was interrupted", zap.Error(runErr))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// writeSnapshot serializes the run as a list of per-domain listing groups.
// Targets that produced nothing are left out.
func writeSnapshot(path string, run *domain.RunResult) error {
	out := make([]map[string][]domain.ListingRecord, 0, len(run.Results))
	for _, res := range run.Results {
		if len(res.Listings) == 0 {
			continue
		}
		out = append(out, map[string][]domain.ListingRecord{res.Domain: res.Listings})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// persistRun writes every harvested record through the database upsert and
// remembers harvested URLs in redis so back-to-back runs skip fresh pages.
func persistRun(ctx context.Context, run *domain.RunResult, pg *storage.PostgresStore, rds *storage.RedisStore, logger *zap.Logger) {
	if err := pg.SaveRun(ctx, run); err != nil {
		logger.Error("failed to persist run", zap.Error(err))
		return
	}
	for _, res := range run.Results {
		for _, rec := range res.Listings {
			if err := rds.MarkHarvested(ctx, rec.URL, 24*time.Hour); err != nil {
				logger.Warn("failed to mark url harvested", zap.Error(err))
			}
		}
	}
	logger.Info("run persisted to database")
}
