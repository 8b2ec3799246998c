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
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level tidepool.yaml shape.
type Config struct {
	Logging  LoggingConfig   `yaml:"logging"`
	Build    BuildConfig     `yaml:"build"`
	Watch    WatchConfig     `yaml:"watch"`
	Projects []ProjectConfig `yaml:"projects" validate:"required,min=1,dive"`
}

// ProjectConfig declares one project to serve.
type ProjectConfig struct {
	// Name is the stable project identifier used in events.
	Name string `yaml:"name" validate:"required"`

	// Root is the project directory to compile and watch.
	Root string `yaml:"root" validate:"required"`

	// Command, when set, launches an external compiler process for this
	// project (argv form). Empty uses the built-in parser.
	Command []string `yaml:"command"`
}

// BuildConfig tunes the build coordinator.
type BuildConfig struct {
	// SignatureDir persists module signatures between runs. Empty keeps
	// them in memory only.
	SignatureDir string `yaml:"signature_dir"`

	// CacheSize bounds the single-file compile result cache.
	// 0 means the default (128); negative disables caching.
	CacheSize int `yaml:"cache_size"`

	// QueueSize is the per-project compile queue capacity.
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
}

// WatchConfig tunes the file watchers.
type WatchConfig struct {
	// DebounceMS is the quiet window before a change batch flushes.
	DebounceMS int `yaml:"debounce_ms" validate:"gte=0"`

	// Extensions limits watched files (e.g. [".ex", ".exs"]).
	// Empty watches everything.
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Debounce returns the configured debounce window.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// LoadConfig reads, expands, and validates a YAML config file.
//
// Description:
//
//	A .env file in the working directory (if any) is loaded first, and
//	${VAR} references in the YAML are expanded from the environment, so
//	machine-specific paths stay out of the committed config.
func LoadConfig(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}
