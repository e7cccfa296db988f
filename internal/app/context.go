package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/datallboy/modfetch/internal/engine"
	"github.com/datallboy/modfetch/internal/event"
	"github.com/datallboy/modfetch/internal/infra/config"
	"github.com/datallboy/modfetch/internal/infra/logger"
	"github.com/datallboy/modfetch/internal/queue"
	"github.com/datallboy/modfetch/internal/ratelimit"
	"github.com/datallboy/modfetch/internal/resolver"
	"github.com/datallboy/modfetch/internal/store"
)

// Context holds the core environment and shared resources for modfetch.
// Everything is wired here once and passed down explicitly.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Governor *ratelimit.Governor
	Engine   *engine.Engine
	Resolver *resolver.Client
	Store    store.QueueStore
	Bus      event.Bus
	Queue    *queue.Manager
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

// NewGovernor builds the rate governor and restores its saved state.
func (a *Context) NewGovernor() *ratelimit.Governor {
	q := a.Config.Quota
	gov := ratelimit.New(a.Logger,
		ratelimit.WithHeaderPrefix(q.HeaderPrefix),
		ratelimit.WithFallbackWait(q.FallbackWait),
		ratelimit.WithStatePath(q.StatePath),
	)
	if q.StatePath != "" {
		if err := gov.LoadState(q.StatePath); err != nil {
			a.Logger.Warn("Using default rate limits: %v", err)
		}
	}
	a.Governor = gov
	return gov
}

// NewEngine builds the transfer engine from the download settings.
func (a *Context) NewEngine() *engine.Engine {
	d := a.Config.Download
	a.Engine = engine.New(a.Logger,
		engine.WithMaxConcurrent(d.MaxConcurrent),
		engine.WithChunkSize(d.ChunkSize),
		engine.WithProgressInterval(d.ProgressInterval),
		engine.WithTimeout(d.Timeout),
		engine.WithUserAgent(d.UserAgent),
	)
	return a.Engine
}

// Build wires the full service: governor, engine, resolver, store, bus
// and queue.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Context, error) {
	a := NewContext(cfg, log)

	gov := a.NewGovernor()
	a.NewEngine()

	r := cfg.Resolver
	a.Resolver = resolver.New(r.APIKey, gov, log,
		resolver.WithTimeout(r.Timeout),
		resolver.WithUserAgent(r.UserAgent),
	)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}
	a.Store = st

	a.Bus = event.NewInMemoryBus()

	q, err := queue.New(ctx, st, a.Engine, a.Bus, log,
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithBackoffBase(cfg.Queue.BackoffBase),
		queue.WithMaxRetries(cfg.Queue.MaxRetries),
		queue.WithResolver(a.Resolver),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.Queue = q

	log.Info("Queue ready with %d item(s) using the %s store", len(q.List()), cfg.Store.Driver)
	return a, nil
}

// Close stops the queue loop, saves the quota snapshot and closes the store.
func (a *Context) Close() error {
	var errs []error

	if a.Queue != nil {
		a.Queue.StopProcessing()
	}
	if a.Governor != nil && a.Config.Quota.StatePath != "" {
		errs = append(errs, a.Governor.SaveState(a.Config.Quota.StatePath))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}

	return errors.Join(errs...)
}
