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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tidepool/services/langd/build"
	"github.com/AleutianAI/tidepool/services/langd/events"
)

var compileIncremental bool

var compileCmd = &cobra.Command{
	Use:   "compile [project...]",
	Short: "Run one compile pass and exit non-zero on errors",
	Long: `Compiles the named projects (all configured projects when none are
named), printing every event as a JSON line. The exit code reflects the
combined compile status, which makes this suitable for CI.`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().BoolVar(&compileIncremental, "incremental", false,
		"allow the toolchain to run a lighter incremental pass")
}

// runCompile compiles each selected project once, synchronously.
func runCompile(cmd *cobra.Command, args []string) error {
	selected, err := selectProjects(args)
	if err != nil {
		return err
	}

	ctx := context.Background()

	store, err := newStore(config.Build)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	printer := newEventPrinter(os.Stdout)
	done := make(chan events.Status, len(selected))
	bus.Subscribe(func(e *events.Event) {
		printer.print(e)
		if e.Type == events.TypeProjectCompiled {
			done <- e.Data.(events.ProjectCompiled).Status
		}
	})

	co, err := build.NewCoordinator(bus, build.Config{
		Store:           store,
		ResultCacheSize: cacheSize(config.Build),
		WorkerQueueSize: config.Build.QueueSize,
	})
	if err != nil {
		return err
	}
	defer co.Close(context.Background())

	for _, p := range selected {
		if err := co.AddProject(ctx, p.Name, p.Root, toolchainFor(p)); err != nil {
			return err
		}
		if err := co.ScheduleCompile(ctx, p.Name, !compileIncremental); err != nil {
			return err
		}
	}

	failed := 0
	for range selected {
		if <-done == events.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed to compile", failed, len(selected))
	}
	return nil
}

// selectProjects resolves command arguments against the configuration.
// No arguments selects every configured project.
func selectProjects(names []string) ([]ProjectConfig, error) {
	if len(names) == 0 {
		return config.Projects, nil
	}
	byName := make(map[string]ProjectConfig, len(config.Projects))
	for _, p := range config.Projects {
		byName[p.Name] = p
	}
	out := make([]ProjectConfig, 0, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("project %q is not configured", name)
		}
		out = append(out, p)
	}
	return out, nil
}
