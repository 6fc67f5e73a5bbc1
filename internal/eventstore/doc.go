// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package eventstore implements an append-only, file-backed store for two
// classes of records — signals and emissions — with deterministic replay,
// idempotent ingestion, checkpointed resumption, and a small family of
// derived queries.
//
// A Store owns a workspace directory laid out as:
//
//	workspace/store/signals/     YYYY-MM-DD.jsonl
//	workspace/store/emissions/   YYYY-MM-DD.jsonl
//	workspace/store/snapshots/   <name>__<token>.json, digest__<day>.json, calibration__<day>.json
//	workspace/store/checkpoints/ <name>.json
//
// One Store is owned by one caller at a time: there is no multi-writer
// coordination, and the only goroutines are the ones that feed each range
// scan's channel. Range scans stream results over a channel and are
// single-pass.
//
// In the query facade methods, a zero time.Time passed as a window bound
// means "unbounded": a zero start is treated as the epoch, a zero end is
// treated as time.Now(). IterSignals, IterEmissions and
// IterSignalsFromCheckpoint take their bounds as given.
package eventstore
