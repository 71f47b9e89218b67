package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bryan-buckman/feedkeeper/internal/config"
	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/feeds"
	"github.com/bryan-buckman/feedkeeper/internal/logging"
	"github.com/bryan-buckman/feedkeeper/internal/merge"
	"github.com/bryan-buckman/feedkeeper/internal/rss"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// app is the wired runtime shared by the commands that touch feeds.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *database.DB
	client      *http.Client
	registry    *feeds.Registry
	scheduler   *feeds.Scheduler
	tracker     *feeds.Tracker
	manager     *feeds.Manager
	coordinator *rss.Coordinator
}

// openApp opens the store and loads the live feeds. The coordinator is
// built but not started.
func (c *commandContext) openApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging, logOut)

	store, err := database.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	global, err := store.GetAutoUpdateInterval(ctx, cfg.GlobalInterval())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load auto-update interval: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		client:    &http.Client{Timeout: cfg.FetchTimeout()},
		registry:  feeds.NewRegistry(),
		scheduler: feeds.NewScheduler(global),
	}
	a.tracker = feeds.NewTracker(store, logger)
	a.manager = feeds.NewManager(store, a.registry, a.tracker, a.scheduler, logger)

	if err := a.registry.Load(ctx, store, a.scheduler); err != nil {
		store.Close()
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	for _, f := range a.registry.All() {
		if err := a.tracker.RefreshCounts(ctx, f, true); err != nil {
			logger.Warn("Failed to count messages", "feed_id", f.ID(), "error", err)
		}
	}

	source := rss.NewHTTPSource(a.client, cfg.Fetch.UserAgent, cfg.Fetch.PerDomainConcurrency, cfg.PerDomainDelay())
	a.coordinator = rss.NewCoordinator(rss.Env{
		Store:     store,
		Registry:  a.registry,
		Tracker:   a.tracker,
		Scheduler: a.scheduler,
		Merger:    merge.NewEngine(store, logger),
		Source:    source,
		Logger:    logger,
	}, rss.Options{
		Workers:    cfg.Fetch.Workers,
		TickPeriod: cfg.TickPeriod(),
	})
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
