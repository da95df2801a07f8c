package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	// registers the researcher, analyzer and formatter roles
	_ "github.com/aixgo-dev/searchflow/agents"
	agentdef "github.com/aixgo-dev/searchflow/internal/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/cache"
	"github.com/aixgo-dev/searchflow/internal/llm/cost"
	"github.com/aixgo-dev/searchflow/internal/llm/provider"
	"github.com/aixgo-dev/searchflow/internal/pipeline"
	"github.com/aixgo-dev/searchflow/internal/protocol"
	"github.com/aixgo-dev/searchflow/pkg/config"
)

// app is the wired pipeline: provider stack, stages and runner.
type app struct {
	runner *pipeline.Runner
	store  cache.Store
	client *llm.Client
	logger *zap.Logger
}

// newApp builds the pipeline from cfg. A non-nil base replaces the configured provider.
func newApp(cfg *config.Config, logger *zap.Logger, base provider.Provider) (*app, error) {
	calc := cost.NewCalculator()
	for i := range cfg.LLM.Pricing {
		calc.AddPricing(&cfg.LLM.Pricing[i])
	}

	if base == nil {
		var err error
		base, err = provider.Create(cfg.LLM.Provider, cfg.LLM.ProviderOptions())
		if err != nil {
			return nil, fmt.Errorf("create %s provider: %w", cfg.LLM.Provider, err)
		}
	}

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	prov := provider.NewInstrumentedProvider(base, &provider.InstrumentedConfig{Calculator: calc, Enabled: true})
	cached := provider.NewCachedProvider(prov, store, cfg.Cache.TTL, logger)
	client := llm.NewClient(cached, cfg.LLM.ClientConfig(), llm.WithLogger(logger))

	stages := protocol.NewRegistry()
	deps := agentdef.Deps{Reasoner: client, Logger: logger}
	for _, def := range cfg.Stages {
		stage, err := agentdef.CreateStage(def, deps)
		if err != nil {
			closeStore(store, logger)
			return nil, fmt.Errorf("stage %s: %w", def.Name, err)
		}
		if err := stages.Register(def.Name, stage); err != nil {
			closeStore(store, logger)
			return nil, err
		}
	}

	runner, err := pipeline.NewRunner(stages, cfg.Pipeline, pipeline.WithLogger(logger))
	if err != nil {
		closeStore(store, logger)
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.String("provider", base.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.Strings("stages", runner.Stages()),
		zap.String("cache", cfg.Cache.Backend))

	return &app{runner: runner, store: store, client: client, logger: logger}, nil
}

// close waits up to timeout for running queries and releases the cache.
func (a *app) close(timeout time.Duration) {
	if err := a.runner.Close(timeout); err != nil {
		a.logger.Warn("runs still in flight at shutdown", zap.Error(err))
	}
	closeStore(a.store, a.logger)
}

// cachePing is nil when caching is off.
func (a *app) cachePing() func(context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Ping
}

func closeStore(store cache.Store, logger *zap.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("close response cache", zap.Error(err))
	}
}
