// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the store's zerolog-based structured logging: a
// global logger configured once at startup, plus context-correlated logging
// for operations that carry a correlation or request id.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Msg("store opened")
//	logging.Error().Err(err).Msg("checkpoint write failed")
//
//	// Context-aware logging
//	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
//	logging.Ctx(ctx).Info().Msg("append accepted")
//
// # Configuration
//
// Level (trace through error), Format (json or console) and Caller map
// directly onto internal/config's LoggingConfig. Timestamp and Output have
// no LoggingConfig counterpart and are set only on logging.Config.
//
// # Component Loggers
//
//	storeLogger := logging.With().Str("component", "store").Logger()
//	storeLogger.Info().Msg("index rebuild started")
//
// # Thread Safety
//
// All exported functions are safe for concurrent use; the global logger is
// protected by sync.RWMutex for configuration changes.
package logging
