// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// StoreLogger provides structured logging for the event store's component
// boundaries: index rebuilds, writer duplicate-policy decisions, and
// checkpoint application. It never logs envelope payload contents, since
// those may carry arbitrary caller data.
type StoreLogger struct {
	logger zerolog.Logger
}

// NewStoreLogger creates a StoreLogger scoped to the given component name,
// using the global logger.
func NewStoreLogger(component string) *StoreLogger {
	return &StoreLogger{
		logger: With().Str("component", component).Logger(),
	}
}

// NewStoreLoggerWithLogger creates a StoreLogger backed by a specific zerolog
// logger instead of the process-global one.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewStoreLoggerWithLogger(logger zerolog.Logger, component string) *StoreLogger {
	return &StoreLogger{
		logger: logger.With().Str("component", component).Logger(),
	}
}

func (s *StoreLogger) withContext(ctx context.Context) zerolog.Logger {
	logCtx := s.logger.With()
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}
	return logCtx.Logger()
}

// IndexRebuildStarted logs the start of a lazy dedup index rebuild.
func (s *StoreLogger) IndexRebuildStarted(ctx context.Context, partitionDir string) {
	s.withContext(ctx).Debug().
		Str("partition_dir", partitionDir).
		Msg("dedup index rebuild started")
}

// IndexRebuildFinished logs the completion of a lazy dedup index rebuild.
func (s *StoreLogger) IndexRebuildFinished(ctx context.Context, partitionDir string, recordCount, durationMs int64) {
	s.withContext(ctx).Info().
		Str("partition_dir", partitionDir).
		Int64("record_count", recordCount).
		Int64("duration_ms", durationMs).
		Msg("dedup index rebuild finished")
}

// IndexRebuildSlow warns when a rebuild's record count exceeds the
// configured threshold, since the rebuild is the store's dominant I/O cost.
func (s *StoreLogger) IndexRebuildSlow(ctx context.Context, partitionDir string, recordCount, threshold int) {
	s.withContext(ctx).Warn().
		Str("partition_dir", partitionDir).
		Int("record_count", recordCount).
		Int("threshold", threshold).
		Msg("dedup index rebuild exceeded warn threshold")
}

// DuplicateWrite logs a writer's duplicate-policy decision for an append.
func (s *StoreLogger) DuplicateWrite(ctx context.Context, id, policy string) {
	s.withContext(ctx).Debug().
		Str("id", id).
		Str("policy", policy).
		Msg("duplicate write resolved")
}

// CheckpointApplied logs a checkpoint-resumed scan's outcome.
func (s *StoreLogger) CheckpointApplied(ctx context.Context, checkpointName string, skipped, emitted int64) {
	s.withContext(ctx).Info().
		Str("checkpoint", checkpointName).
		Int64("skipped", skipped).
		Int64("emitted", emitted).
		Msg("checkpoint applied")
}
