// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tidepool/services/langd/build"
	"github.com/AleutianAI/tidepool/services/langd/events"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
	"github.com/AleutianAI/tidepool/services/langd/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch configured projects and stream compile events as JSON lines",
	RunE:  runServe,
}

// runServe wires watchers into the coordinator and streams every
// published event to stdout until interrupted.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(config.Build)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	printer := newEventPrinter(os.Stdout)
	bus.Subscribe(printer.print)

	co, err := build.NewCoordinator(bus, build.Config{
		Store:           store,
		ResultCacheSize: cacheSize(config.Build),
		WorkerQueueSize: config.Build.QueueSize,
	})
	if err != nil {
		return err
	}
	defer co.Close(context.Background())

	var watchers []*watch.Watcher
	defer func() {
		for _, w := range watchers {
			w.Stop()
		}
	}()

	for _, p := range config.Projects {
		if err := co.AddProject(ctx, p.Name, p.Root, toolchainFor(p)); err != nil {
			return err
		}

		w, err := watch.New(p.Root, watch.CompileTrigger(ctx, co, p.Name), watch.Options{
			Debounce:   config.Watch.Debounce(),
			Extensions: config.Watch.Extensions,
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		watchers = append(watchers, w)

		// Baseline pass so the first watch-triggered compile diffs
		// against current reality rather than the last run's snapshot.
		if err := co.ScheduleCompile(ctx, p.Name, false); err != nil {
			return err
		}
	}

	slog.Info("serving", slog.Int("projects", len(config.Projects)))
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// newStore builds the signature store for the configured persistence.
func newStore(cfg BuildConfig) (build.SignatureStore, error) {
	if cfg.SignatureDir == "" {
		return build.NewMemoryStore(), nil
	}
	return build.NewBadgerStore(build.BadgerConfig{
		Path:   cfg.SignatureDir,
		Logger: slog.Default(),
	})
}

// cacheSize maps the config convention (0 default, negative disabled)
// onto the coordinator's (positive enabled, other disabled).
func cacheSize(cfg BuildConfig) int {
	switch {
	case cfg.CacheSize == 0:
		return 128
	case cfg.CacheSize < 0:
		return 0
	default:
		return cfg.CacheSize
	}
}

// toolchainFor picks the external compiler process when configured,
// the built-in parser otherwise.
func toolchainFor(p ProjectConfig) toolchain.Toolchain {
	if len(p.Command) > 0 {
		return toolchain.NewProc(toolchain.ProcConfig{
			Command: p.Command[0],
			Args:    p.Command[1:],
			Dir:     p.Root,
		})
	}
	return toolchain.NewRef()
}

// eventPrinter writes events as JSON lines. A mutex keeps concurrent
// publishes from interleaving output.
type eventPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventPrinter(w *os.File) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w)}
}

func (p *eventPrinter) print(e *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(e); err != nil {
		slog.Warn("encoding event failed", slog.String("error", err.Error()))
	}
}
