// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command eventstorectl opens the configured workspace and reports its
// current footprint. It is a readiness/inspection tool, not a general
// ingestion or query CLI — drive writes and reads through the eventstore
// package directly.
package main

import (
	"os"

	json "github.com/goccy/go-json"

	"github.com/metaspn/eventstore/internal/config"
	"github.com/metaspn/eventstore/internal/eventstore"
	"github.com/metaspn/eventstore/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("eventstorectl failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	store, err := eventstore.Open(cfg.Workspace, eventstore.WithIndexRebuildWarnThreshold(cfg.IndexRebuildWarnThreshold))
	if err != nil {
		return err
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
