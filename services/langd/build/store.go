// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// SignatureStore persists per-project module signature snapshots.
//
// A persistent store lets a restarted server publish only real deltas
// instead of re-announcing every module on the first compile.
type SignatureStore interface {
	// Load returns the stored snapshot for project, or an empty map
	// when none exists.
	Load(project string) (map[string]Signature, error)

	// Save replaces the stored snapshot for project.
	Save(project string, sigs map[string]Signature) error

	// Close releases store resources.
	Close() error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is an in-process SignatureStore. Snapshots do not survive
// a restart; suitable for tests and single-shot compiles.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]Signature
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Signature)}
}

// Load implements SignatureStore.
func (s *MemoryStore) Load(project string) (map[string]Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Signature, len(s.data[project]))
	for k, v := range s.data[project] {
		out[k] = v
	}
	return out, nil
}

// Save implements SignatureStore.
func (s *MemoryStore) Save(project string, sigs map[string]Signature) error {
	cp := make(map[string]Signature, len(sigs))
	for k, v := range sigs {
		cp[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[project] = cp
	return nil
}

// Close implements SignatureStore.
func (s *MemoryStore) Close() error {
	return nil
}

// =============================================================================
// BADGER STORE
// =============================================================================

// BadgerConfig holds configuration for a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: false; signature snapshots are cheap to rebuild.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, BadgerDB
	// logging is disabled.
	Logger *slog.Logger
}

// BadgerStore is a SignatureStore backed by an embedded BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions
// provide isolation.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens a BadgerStore with the given configuration.
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must Close() when done.
//	error - Non-nil if the path is missing or the database cannot open.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent signature store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open signature store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// sigKey builds the storage key for a project's snapshot.
func sigKey(project string) []byte {
	return []byte("sig/" + project)
}

// Load implements SignatureStore.
func (s *BadgerStore) Load(project string) (map[string]Signature, error) {
	out := make(map[string]Signature)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sigKey(project))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load signatures for %s: %w", project, err)
	}
	return out, nil
}

// Save implements SignatureStore.
func (s *BadgerStore) Save(project string, sigs map[string]Signature) error {
	data, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("marshal signatures for %s: %w", project, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sigKey(project), data)
	})
	if err != nil {
		return fmt.Errorf("save signatures for %s: %w", project, err)
	}
	return nil
}

// Close implements SignatureStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
