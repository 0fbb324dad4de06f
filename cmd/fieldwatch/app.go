package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/risk"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/storage"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// app is the wired core shared by every command: the response and alert
// store, the survey catalog, the alert manager and the detection engine.
type app struct {
	store      state.Store
	persistent bool
	catalog    *survey.Catalog
	manager    *alerts.Manager
	engine     *monitor.Engine
}

// openApp builds the core from cfg. engineOpts are passed to the detection
// engine; the engine is not started.
func openApp(ctx context.Context, cfg config.Config, engineOpts ...monitor.Option) (*app, error) {
	store, persistent, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage error: %w", err)
	}

	catalog, err := survey.LoadFile(config.ExpandHome(cfg.Catalog.Path))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("catalog error: %w", err)
	}

	manager := alerts.NewManager(store)
	if err := manager.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	detector := risk.NewDetector(risk.ConfigFrom(cfg.Detection), catalog)

	return &app{
		store:      store,
		persistent: persistent,
		catalog:    catalog,
		manager:    manager,
		engine:     monitor.New(store, manager, detector, engineOpts...),
	}, nil
}

// Close stops the manager and flushes the store.
func (a *app) Close() error {
	return errors.Join(a.manager.Close(), a.store.Close())
}

// droppedWrites reports the store's write monitor when it has one.
func (a *app) droppedWrites() (interface{ DroppedWrites() int64 }, bool) {
	wm, ok := a.store.(interface{ DroppedWrites() int64 })
	return wm, ok
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
