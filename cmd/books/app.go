package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-books-must-balance/internal/audit"
	"github.com/Veraticus/the-books-must-balance/internal/classification"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/config"
	"github.com/Veraticus/the-books-must-balance/internal/engine"
	"github.com/Veraticus/the-books-must-balance/internal/explain"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

// app holds the wired categorization core for one command invocation.
type app struct {
	cfg          *config.Config
	store        *storage.SQLiteStorage
	rules        *pattern.CachedRuleStore
	journal      *audit.JSONLSink
	registry     *llm.Registry
	selector     *llm.Selector
	orchestrator *engine.Orchestrator
	logger       *slog.Logger
}

// openStore loads config and opens the migrated database without wiring
// providers, for commands that only administer stored state.
func openStore(ctx context.Context) (*config.Config, *storage.SQLiteStorage, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, common.NewUserError("invalid configuration", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, store, nil
}

// newApp wires storage, the rule engine, providers, explanation and
// feedback into an orchestrator.
func newApp(ctx context.Context) (*app, error) {
	cfg, store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store, logger: slog.Default()}

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	var err error

	configured, err := a.cfg.Registry()
	if err != nil {
		return common.NewUserError("invalid provider configuration", err)
	}

	adapters, err := llm.NewAdapters(configured, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create provider adapters: %w", err)
	}
	if len(adapters) == 0 {
		a.logger.Warn("no AI provider has an API key; unmatched transactions will fall back")
	}
	a.registry = llm.Usable(configured, adapters)
	a.selector = llm.NewSelector(a.registry, a.cfg.RNG())

	sinks := []service.AuditLogger{a.store}
	if a.cfg.AuditPath != "" {
		a.journal, err = audit.NewJSONLSink(a.cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %w", err)
		}
		sinks = append(sinks, a.journal)
	}
	sinks = append(sinks, audit.NewLogSink(a.logger, slog.LevelDebug))
	auditLog := audit.NewMulti(sinks...)

	a.rules = pattern.NewCachedRuleStore(a.store, a.cfg.Rules.CacheTTL)
	matcher := pattern.NewEngine(a.rules,
		pattern.WithFloor(a.cfg.Rules.ShortCircuitFloor),
		pattern.WithLogger(a.logger))

	detector, err := classification.NewPatternDetector(classification.DefaultPatterns())
	if err != nil {
		return fmt.Errorf("failed to compile default patterns: %w", err)
	}

	promoter := feedback.NewPromoter(a.rules, a.store, auditLog, a.cfg.Promotion, a.logger)

	a.orchestrator, err = engine.New(engine.Dependencies{
		Rules:     matcher,
		RuleStore: a.rules,
		Registry:  a.registry,
		Selector:  a.selector,
		Adapters:  adapters,
		Explainer: explain.NewBuilder(detector),
		Ledger:    a.store,
		History:   a.store,
		Recorder:  a.store,
		Audit:     auditLog,
		Promoter:  promoter,
		Logger:    a.logger,
	}, a.cfg.Engine)
	return err
}

// Close releases the cache, journal and database.
func (a *app) Close() error {
	var errs []error
	if a.rules != nil {
		a.rules.Close()
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
