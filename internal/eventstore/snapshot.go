// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"fmt"
	"path/filepath"
	"time"
)

// dayToken accepts a time.Time or a pre-formatted string and returns the
// canonical YYYY-MM-DD form used in digest/calibration snapshot names.
func dayToken(day interface{}) (string, error) {
	switch v := day.(type) {
	case time.Time:
		return PartitionDay(v), nil
	case string:
		return v, nil
	default:
		return "", &InvalidInputError{Field: "day", Reason: "must be a time.Time or string"}
	}
}

// WriteSnapshot writes an arbitrary named snapshot, `<name>__<token>.json`,
// where token is derived from snapshotTime. Overwriting with an identical
// payload reproduces the same bytes.
func (s *Store) WriteSnapshot(name string, state interface{}, snapshotTime time.Time) (string, error) {
	token := SnapshotToken(snapshotTime)
	path := filepath.Join(s.snapshotsDir, fmt.Sprintf("%s__%s.json", name, token))
	if err := writeJSONFile(path, state); err != nil {
		return "", err
	}
	return path, nil
}

type digestSnapshot struct {
	Day           string      `json:"day"`
	Digest        interface{} `json:"digest"`
	SchemaVersion string      `json:"schema_version"`
}

// WriteDailyDigestSnapshot writes `digest__<day>.json`. The file name is
// fixed per day, so rerunning with identical digest bytes overwrites with an
// identical file rather than creating a second one.
func (s *Store) WriteDailyDigestSnapshot(day interface{}, digest interface{}) (string, error) {
	token, err := dayToken(day)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.snapshotsDir, fmt.Sprintf("digest__%s.json", token))
	doc := digestSnapshot{Day: token, Digest: digest, SchemaVersion: "0.1"}
	if err := writeJSONFile(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDailyDigestSnapshot reads back a digest snapshot, returning (nil, nil)
// when the file does not exist.
func (s *Store) ReadDailyDigestSnapshot(day interface{}) (map[string]interface{}, error) {
	token, err := dayToken(day)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.snapshotsDir, fmt.Sprintf("digest__%s.json", token))
	var doc map[string]interface{}
	ok, err := readJSONFile(path, &doc)
	if err != nil || !ok {
		return nil, err
	}
	return doc, nil
}

type calibrationSnapshot struct {
	Day           string      `json:"day"`
	Report        interface{} `json:"report"`
	SchemaVersion string      `json:"schema_version"`
}

// WriteCalibrationSnapshot writes `calibration__<day>.json`, mirroring
// WriteDailyDigestSnapshot.
func (s *Store) WriteCalibrationSnapshot(day interface{}, report interface{}) (string, error) {
	token, err := dayToken(day)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.snapshotsDir, fmt.Sprintf("calibration__%s.json", token))
	doc := calibrationSnapshot{Day: token, Report: report, SchemaVersion: "0.1"}
	if err := writeJSONFile(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// ReadCalibrationSnapshot reads back a calibration snapshot, returning (nil,
// nil) when the file does not exist.
func (s *Store) ReadCalibrationSnapshot(day interface{}) (map[string]interface{}, error) {
	token, err := dayToken(day)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.snapshotsDir, fmt.Sprintf("calibration__%s.json", token))
	var doc map[string]interface{}
	ok, err := readJSONFile(path, &doc)
	if err != nil || !ok {
		return nil, err
	}
	return doc, nil
}
