// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/metaspn/eventstore/internal/logging"
)

// Store owns a workspace directory and the in-memory dedup indices built
// from it. One Store is meant to be owned by one caller at a time; there is
// no internal parallelism and no multi-process write coordination.
type Store struct {
	workspace string
	root      string

	signalsDir     string
	emissionsDir   string
	snapshotsDir   string
	checkpointsDir string

	signalIndex   *dedupIndex
	emissionIndex *dedupIndex

	logger *logging.StoreLogger
}

// Option configures optional Store behavior at Open time.
type Option func(*openOptions)

type openOptions struct {
	indexRebuildWarnThreshold int
}

// WithIndexRebuildWarnThreshold logs a warning whenever a lazy dedup index
// rebuild indexes more than n distinct ids, since the rebuild is the store's
// dominant I/O cost. Zero (the default) disables the warning.
func WithIndexRebuildWarnThreshold(n int) Option {
	return func(o *openOptions) { o.indexRebuildWarnThreshold = n }
}

// Open creates (idempotently) the four fixed subdirectories under
// workspace/store and returns a ready-to-use Store.
func Open(workspace string, opts ...Option) (*Store, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	root := filepath.Join(workspace, "store")
	dirs := map[string]string{
		"signals":     filepath.Join(root, "signals"),
		"emissions":   filepath.Join(root, "emissions"),
		"snapshots":   filepath.Join(root, "snapshots"),
		"checkpoints": filepath.Join(root, "checkpoints"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("eventstore: create %s: %w", d, err)
		}
	}
	logger := logging.NewStoreLogger("eventstore")
	return &Store{
		workspace:      workspace,
		root:           root,
		signalsDir:     dirs["signals"],
		emissionsDir:   dirs["emissions"],
		snapshotsDir:   dirs["snapshots"],
		checkpointsDir: dirs["checkpoints"],
		signalIndex:    newDedupIndex(dirs["signals"], "signal_id", "signal", logger, o.indexRebuildWarnThreshold),
		emissionIndex:  newDedupIndex(dirs["emissions"], "emission_id", "emission", logger, o.indexRebuildWarnThreshold),
		logger:         logger,
	}, nil
}

// Stats summarizes the store's on-disk and in-memory footprint.
type Stats struct {
	SignalPartitionFiles   int `json:"signal_partition_files"`
	EmissionPartitionFiles int `json:"emission_partition_files"`
	SignalIndexSize        int `json:"signal_index_size"`
	EmissionIndexSize      int `json:"emission_index_size"`
}

// Stats rebuilds both dedup indices if needed and reports partition file
// counts alongside index sizes.
func (s *Store) Stats() (Stats, error) {
	sigFiles, err := partitionFilesSorted(s.signalsDir)
	if err != nil {
		return Stats{}, err
	}
	emFiles, err := partitionFilesSorted(s.emissionsDir)
	if err != nil {
		return Stats{}, err
	}
	if err := s.signalIndex.ensureBuilt(); err != nil {
		return Stats{}, err
	}
	if err := s.emissionIndex.ensureBuilt(); err != nil {
		return Stats{}, err
	}
	return Stats{
		SignalPartitionFiles:   len(sigFiles),
		EmissionPartitionFiles: len(emFiles),
		SignalIndexSize:        s.signalIndex.size(),
		EmissionIndexSize:      s.emissionIndex.size(),
	}, nil
}

func appendLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventstore: marshal record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventstore: open partition %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("eventstore: write %s: %w", path, err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("eventstore: write %s: %w", path, err)
	}
	return w.Flush()
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventstore: marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSONFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("eventstore: unmarshal %s: %w", path, err)
	}
	return true, nil
}
