// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"context"
	"path/filepath"
	"time"
)

// BuildSignalCheckpoint derives a resume token from a processed sequence of
// signals. The sequence must have non-decreasing canonical timestamps; an
// empty sequence yields a nil checkpoint rather than an error.
func BuildSignalCheckpoint(processed []*SignalEnvelope) (*ReplayCheckpoint, error) {
	if len(processed) == 0 {
		return nil, nil
	}
	var maxTS time.Time
	var ids []string
	for i, env := range processed {
		ts := ToUTC(env.Timestamp)
		switch {
		case i == 0:
			maxTS = ts
			ids = []string{env.SignalID}
		case ts.Before(maxTS):
			return nil, &InvalidInputError{Field: "processed_sequence", Reason: "timestamps must be non-decreasing"}
		case ts.After(maxTS):
			maxTS = ts
			ids = []string{env.SignalID}
		default:
			ids = append(ids, env.SignalID)
		}
	}
	return NewReplayCheckpoint(maxTS, ids), nil
}

// IterSignalsFromCheckpoint resumes a scan at max(start, checkpoint's last
// timestamp), dropping ids already recorded as seen at that exact boundary
// instant so no record is missed and none already processed is repeated.
// A nil checkpoint behaves exactly like IterSignals.
func (s *Store) IterSignalsFromCheckpoint(start, end time.Time, checkpoint *ReplayCheckpoint, filter SignalFilter) (<-chan *SignalEnvelope, <-chan error) {
	if checkpoint == nil {
		return s.IterSignals(start, end, filter)
	}
	recordCheckpointApply("signal")

	effectiveStart := start
	if checkpoint.LastTimestamp.After(ToUTC(effectiveStart)) {
		effectiveStart = checkpoint.LastTimestamp
	}

	in, errc := s.IterSignals(effectiveStart, end, filter)
	seenAtBoundary := toSet(checkpoint.SeenIDsAtTimestamp)

	out := make(chan *SignalEnvelope, 64)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		var skipped, emitted int64
		for env := range in {
			if ToUTC(env.Timestamp).Equal(checkpoint.LastTimestamp) {
				if _, dup := seenAtBoundary[env.SignalID]; dup {
					skipped++
					continue
				}
			}
			emitted++
			out <- env
		}
		if err := <-errc; err != nil {
			outErr <- err
			return
		}
		s.logger.CheckpointApplied(context.Background(), "", skipped, emitted)
	}()
	return out, outErr
}

// WriteCheckpoint persists a checkpoint as `<name>.json` under
// workspace/store/checkpoints.
func (s *Store) WriteCheckpoint(name string, cp *ReplayCheckpoint) error {
	return writeJSONFile(s.checkpointPath(name), cp)
}

// ReadCheckpoint reads a previously written checkpoint, returning (nil, nil)
// when the file does not exist.
func (s *Store) ReadCheckpoint(name string) (*ReplayCheckpoint, error) {
	var cp ReplayCheckpoint
	ok, err := readJSONFile(s.checkpointPath(name), &cp)
	if err != nil || !ok {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) checkpointPath(name string) string {
	return filepath.Join(s.checkpointsDir, name+".json")
}
