// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// WriteSignal appends a validated signal envelope to its partition file,
// applying onDuplicate when signal_id already exists in the index. It
// returns the partition path the record lives in — the new one on a fresh
// write, or the existing one when a duplicate policy short-circuits.
func (s *Store) WriteSignal(env *SignalEnvelope, onDuplicate DuplicatePolicy) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	if !validDuplicatePolicy(onDuplicate) {
		return "", &InvalidInputError{Field: "on_duplicate", Reason: fmt.Sprintf("unknown policy %q", onDuplicate)}
	}
	if err := s.signalIndex.ensureBuilt(); err != nil {
		return "", err
	}
	if existing, ok := s.signalIndex.lookup(env.SignalID); ok {
		return s.resolveDuplicate("signal", env.SignalID, existing, onDuplicate)
	}
	path := partitionPath(s.signalsDir, env.Timestamp)
	if err := appendLine(path, env); err != nil {
		return "", err
	}
	s.signalIndex.bind(env.SignalID, path)
	recordWrite("signal")
	return path, nil
}

// WriteEmission appends a validated emission envelope, mirroring WriteSignal.
func (s *Store) WriteEmission(env *EmissionEnvelope, onDuplicate DuplicatePolicy) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	if !validDuplicatePolicy(onDuplicate) {
		return "", &InvalidInputError{Field: "on_duplicate", Reason: fmt.Sprintf("unknown policy %q", onDuplicate)}
	}
	if err := s.emissionIndex.ensureBuilt(); err != nil {
		return "", err
	}
	if existing, ok := s.emissionIndex.lookup(env.EmissionID); ok {
		return s.resolveDuplicate("emission", env.EmissionID, existing, onDuplicate)
	}
	path := partitionPath(s.emissionsDir, env.Timestamp)
	if err := appendLine(path, env); err != nil {
		return "", err
	}
	s.emissionIndex.bind(env.EmissionID, path)
	recordWrite("emission")
	return path, nil
}

func (s *Store) resolveDuplicate(class, id, existing string, policy DuplicatePolicy) (string, error) {
	recordDuplicate(class, string(policy))
	s.logger.DuplicateWrite(context.Background(), id, string(policy))
	switch policy {
	case OnDuplicateIgnore, OnDuplicateReturnExisting:
		return existing, nil
	case OnDuplicateRaise:
		return "", &DuplicateEventError{ID: id, Path: existing}
	default:
		return "", &InvalidInputError{Field: "on_duplicate", Reason: fmt.Sprintf("unknown policy %q", policy)}
	}
}

// WriteSignals writes each envelope in order, applying onDuplicate
// per-element, and returns the ordered list of resulting partition paths.
// It stops at the first error, returning the paths written so far.
func (s *Store) WriteSignals(envs []*SignalEnvelope, onDuplicate DuplicatePolicy) ([]string, error) {
	paths := make([]string, 0, len(envs))
	for _, env := range envs {
		path, err := s.WriteSignal(env, onDuplicate)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteEmissions writes each envelope in order, mirroring WriteSignals.
func (s *Store) WriteEmissions(envs []*EmissionEnvelope, onDuplicate DuplicatePolicy) ([]string, error) {
	paths := make([]string, 0, len(envs))
	for _, env := range envs {
		path, err := s.WriteEmission(env, onDuplicate)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// partitionPath resolves the destination partition file for a record's
// timestamp: dir/<partition_day(timestamp)>.jsonl.
func partitionPath(dir string, t time.Time) string {
	return filepath.Join(dir, PartitionDay(t)+".jsonl")
}
