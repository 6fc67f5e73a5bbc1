// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventstore",
		Name:      "writes_total",
		Help:      "Total number of successful appends, by record class.",
	}, []string{"class"})

	duplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventstore",
		Name:      "duplicate_writes_total",
		Help:      "Total number of writes resolved against an existing id, by record class and policy.",
	}, []string{"class", "policy"})

	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventstore",
		Name:      "scans_total",
		Help:      "Total number of range scans started, by record class.",
	}, []string{"class"})

	checkpointAppliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventstore",
		Name:      "checkpoint_applies_total",
		Help:      "Total number of checkpoint-resumed scans.",
	}, []string{"class"})

	indexRebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventstore",
		Name:      "index_rebuild_duration_seconds",
		Help:      "Duration of lazy dedup index rebuilds, by record class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"class"})
)

func recordWrite(class string) { writesTotal.WithLabelValues(class).Inc() }

func recordDuplicate(class, policy string) { duplicatesTotal.WithLabelValues(class, policy).Inc() }

func recordScan(class string) { scansTotal.WithLabelValues(class).Inc() }

func recordCheckpointApply(class string) { checkpointAppliesTotal.WithLabelValues(class).Inc() }

func observeIndexRebuild(class string, seconds float64) {
	indexRebuildDuration.WithLabelValues(class).Observe(seconds)
}
