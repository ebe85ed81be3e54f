package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alansee1/flooorgang/internal/cache"
	"github.com/alansee1/flooorgang/internal/client"
	"github.com/alansee1/flooorgang/internal/config"
	"github.com/alansee1/flooorgang/internal/notify"
	"github.com/alansee1/flooorgang/internal/pipeline"
	"github.com/alansee1/flooorgang/internal/reconciler"
	"github.com/alansee1/flooorgang/internal/repository"
	"github.com/alansee1/flooorgang/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// App holds the wired components shared by the worker and the CLI
type App struct {
	Config     *config.Config
	DB         *repository.Database
	Cache      *cache.RedisCache
	Notifier   notify.Sink
	Odds       *client.OddsClient
	Stats      *client.StatsClient
	Pipeline   *pipeline.Runner
	Executor   scheduler.DeferredExecutor
	Deferred   *scheduler.Deferred
	Planner    *scheduler.Planner
	Reconciler *reconciler.Reconciler
}

// New connects to the database and Redis and wires every component.
// Redis is optional; without it outcome lookups are not cached.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	var statsCache client.JSONCache
	redisCache, err := cache.NewRedisCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     strconv.Itoa(cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
	} else {
		a.Cache = redisCache
		statsCache = redisCache
	}

	a.Notifier = NewNotifier(cfg)
	a.Executor = scheduler.NewAtExecutor()
	a.wire(statsCache)

	return a, nil
}

// NewNotifier returns the Slack sink, or a no-op sink when no webhook is set
func NewNotifier(cfg *config.Config) notify.Sink {
	if cfg.SlackWebhookURL == "" {
		log.Warn().Msg("SLACK_WEBHOOK_URL not set, notifications disabled")
		return notify.NopSink{}
	}
	return notify.NewSlackSink(cfg.SlackWebhookURL, cfg.NotifyTimeout, cfg.Location())
}

func (a *App) wire(statsCache client.JSONCache) {
	cfg := a.Config
	loc := cfg.Location()

	a.Odds = client.NewOddsClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey, cfg.OddsAPISport, cfg.CalendarTimeout, loc)
	a.Stats = client.NewStatsClient(client.StatsClientConfig{
		BaseURL:    cfg.StatsBaseURL,
		Season:     cfg.StatsSeason,
		SeasonType: cfg.StatsSeasonType,
		Timeout:    cfg.OutcomeTimeout,
		RatePerSec: cfg.StatsRatePerSec,
		CacheTTL:   cfg.CacheTTLStats,
	}, statsCache)

	a.Pipeline = pipeline.NewRunner(pipeline.Config{
		Command:  cfg.ScannerCommand,
		Dir:      cfg.ScannerWorkdir,
		Graphics: cfg.ScannerGraphics,
		Timeout:  cfg.ScannerTimeout,
		LogDir:   cfg.LogDir,
	}, a.DB.ScannerRuns, a.DB.Picks, a.Notifier)

	a.Deferred = scheduler.NewDeferred(a.Executor, a.DB.ScheduledRuns, a.Pipeline, scheduler.CommandSpec{
		Bin:    cfg.PropschedBin,
		Dir:    cfg.ScannerWorkdir,
		LogDir: cfg.LogDir,
	})

	a.Planner = scheduler.NewPlanner(a.Odds, a.Deferred, scheduler.Policy{
		LeadTime:    cfg.LeadTime,
		MinDeferral: cfg.MinDeferral,
		Location:    loc,
	}, a.Notifier)

	a.Reconciler = reconciler.New(a.DB.Picks, a.DB.Results, a.Stats, a.Notifier, cfg.OutcomeTimeout)
}

// Close releases the database pool and Redis client
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
