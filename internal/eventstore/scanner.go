// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// SignalFilter narrows a signal scan. A nil EntityRef or empty Sources
// disables that filter.
type SignalFilter struct {
	EntityRef *EntityRef
	Sources   []string
}

// EmissionFilter narrows an emission scan. A nil EntityRef or empty
// EmissionTypes disables that filter.
type EmissionFilter struct {
	EntityRef     *EntityRef
	EmissionTypes []string
}

// IterSignals streams signals whose canonical timestamp falls in [start,
// end] inclusive, in partition-chronological then append order, deduplicated
// on read. The returned channels are closed when the scan completes; drain
// the error channel after the record channel closes.
func (s *Store) IterSignals(start, end time.Time, filter SignalFilter) (<-chan *SignalEnvelope, <-chan error) {
	start, end = ToUTC(start), ToUTC(end)
	if end.Before(start) {
		return closedWithError[*SignalEnvelope](&InvalidInputError{Field: "end", Reason: "must not be before start"})
	}
	recordScan("signal")
	sourceSet := toSet(filter.Sources)
	match := func(env *SignalEnvelope) bool {
		if sourceSet != nil {
			if _, ok := sourceSet[env.Source]; !ok {
				return false
			}
		}
		if filter.EntityRef != nil && !env.HasEntityRef(*filter.EntityRef) {
			return false
		}
		return true
	}
	return scanDays(s.signalsDir, start, end, decodeSignal, signalID, signalTimestamp, match)
}

// IterEmissions mirrors IterSignals for emissions.
func (s *Store) IterEmissions(start, end time.Time, filter EmissionFilter) (<-chan *EmissionEnvelope, <-chan error) {
	start, end = ToUTC(start), ToUTC(end)
	if end.Before(start) {
		return closedWithError[*EmissionEnvelope](&InvalidInputError{Field: "end", Reason: "must not be before start"})
	}
	recordScan("emission")
	typeSet := toSet(filter.EmissionTypes)
	match := func(env *EmissionEnvelope) bool {
		if typeSet != nil {
			if _, ok := typeSet[env.EmissionType]; !ok {
				return false
			}
		}
		if filter.EntityRef != nil && !env.HasEntityRef(*filter.EntityRef) {
			return false
		}
		return true
	}
	return scanDays(s.emissionsDir, start, end, decodeEmission, emissionID, emissionTimestamp, match)
}

func decodeSignal(line []byte) (*SignalEnvelope, error) {
	var env SignalEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func decodeEmission(line []byte) (*EmissionEnvelope, error) {
	var env EmissionEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func signalID(env *SignalEnvelope) string        { return env.SignalID }
func signalTimestamp(env *SignalEnvelope) time.Time { return ToUTC(env.Timestamp) }

func emissionID(env *EmissionEnvelope) string        { return env.EmissionID }
func emissionTimestamp(env *EmissionEnvelope) time.Time { return ToUTC(env.Timestamp) }

func closedWithError[T any](err error) (<-chan T, <-chan error) {
	out := make(chan T)
	errc := make(chan error, 1)
	close(out)
	errc <- err
	close(errc)
	return out, errc
}

// scanDays streams records across every partition file for the days in
// [start, end], in lexicographic (chronological) file order and append
// order within each file, applying an on-read dedup set and the caller's
// match predicate.
func scanDays[T any](
	dir string,
	start, end time.Time,
	decode func([]byte) (T, error),
	idOf func(T) string,
	tsOf func(T) time.Time,
	match func(T) bool,
) (<-chan T, <-chan error) {
	out := make(chan T, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		seen := make(map[string]struct{})
		for _, day := range iterDays(start, end) {
			path := filepath.Join(dir, day+".jsonl")
			if err := scanFile(path, decode, idOf, tsOf, start, end, seen, match, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func scanFile[T any](
	path string,
	decode func([]byte) (T, error),
	idOf func(T) string,
	tsOf func(T) time.Time,
	start, end time.Time,
	seen map[string]struct{},
	match func(T) bool,
	out chan<- T,
) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := decode(line)
		if err != nil {
			return &ParseError{Path: path, Line: lineNo, Err: err}
		}
		id := idOf(rec)
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
		}
		ts := tsOf(rec)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		if !match(rec) {
			continue
		}
		if id != "" {
			seen[id] = struct{}{}
		}
		out <- rec
	}
	return scanner.Err()
}

func collectSignals(ch <-chan *SignalEnvelope, errc <-chan error) ([]*SignalEnvelope, error) {
	var out []*SignalEnvelope
	for env := range ch {
		out = append(out, env)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}

func collectEmissions(ch <-chan *EmissionEnvelope, errc <-chan error) ([]*EmissionEnvelope, error) {
	var out []*EmissionEnvelope
	for env := range ch {
		out = append(out, env)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}
