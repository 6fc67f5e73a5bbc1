// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/metaspn/eventstore/internal/logging"
)

// dedupIndex maps a record id to the partition path it was first written to.
// It is rebuilt lazily by scanning every partition file in lexicographic
// (and therefore chronological) order, first-seen wins. Once built it is
// updated incrementally in memory by the writer; it is never persisted.
type dedupIndex struct {
	mu           sync.Mutex
	dir          string
	idField      string
	class        string
	built        bool
	byID         map[string]string
	logger       *logging.StoreLogger
	warnThreshold int
}

func newDedupIndex(dir, idField, class string, logger *logging.StoreLogger, warnThreshold int) *dedupIndex {
	return &dedupIndex{dir: dir, idField: idField, class: class, byID: make(map[string]string), logger: logger, warnThreshold: warnThreshold}
}

// ensureBuilt rebuilds the index from disk on first call; subsequent calls
// are no-ops. Safe for concurrent use, though the store itself is intended
// for single-owner use.
func (idx *dedupIndex) ensureBuilt() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.built {
		return nil
	}
	idx.logger.IndexRebuildStarted(context.Background(), idx.dir)
	start := time.Now()
	files, err := partitionFilesSorted(idx.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := idx.scanFileLocked(path); err != nil {
			return err
		}
	}
	idx.built = true
	elapsed := time.Since(start)
	observeIndexRebuild(idx.class, elapsed.Seconds())
	idx.logger.IndexRebuildFinished(context.Background(), idx.dir, int64(len(idx.byID)), elapsed.Milliseconds())
	if idx.warnThreshold > 0 && len(idx.byID) > idx.warnThreshold {
		idx.logger.IndexRebuildSlow(context.Background(), idx.dir, len(idx.byID), idx.warnThreshold)
	}
	return nil
}

func (idx *dedupIndex) scanFileLocked(path string) error {
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
		var rec map[string]interface{}
		if err := json.Unmarshal(line, &rec); err != nil {
			return &ParseError{Path: path, Line: lineNo, Err: err}
		}
		id, _ := rec[idx.idField].(string)
		if id == "" {
			continue
		}
		if _, exists := idx.byID[id]; !exists {
			idx.byID[id] = path
		}
	}
	return scanner.Err()
}

func (idx *dedupIndex) lookup(id string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	path, ok := idx.byID[id]
	return path, ok
}

func (idx *dedupIndex) bind(id, path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.byID[id]; !exists {
		idx.byID[id] = path
	}
}

func (idx *dedupIndex) size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byID)
}

// partitionFilesSorted lists *.jsonl files under dir in lexicographic order,
// which for YYYY-MM-DD names is also chronological. A missing directory
// yields no files rather than an error.
func partitionFilesSorted(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
