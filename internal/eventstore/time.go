// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"strings"
	"time"
)

// snapshotTokenLayout is compact: no dashes or colons in the time portion,
// trailing Z. Matches `%Y-%m-%dT%H%M%SZ`.
const snapshotTokenLayout = "2006-01-02T150405Z"

// partitionDayLayout is the ISO date used for partition file names.
const partitionDayLayout = "2006-01-02"

var epochTime = time.Unix(0, 0).UTC()

// ToUTC canonicalizes an instant to UTC. Every timestamp crossing a write,
// read, filter, or checkpoint boundary passes through this first — it is
// the store's only time-zone policy.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// PartitionDay derives the ISO date of the UTC-normalized instant, used both
// to select a partition file and to verify the partition invariant.
func PartitionDay(t time.Time) string {
	return ToUTC(t).Format(partitionDayLayout)
}

// SnapshotToken formats an instant for use in a named snapshot file, e.g.
// `report__2026-02-05T120000Z.json`.
func SnapshotToken(t time.Time) string {
	return ToUTC(t).Format(snapshotTokenLayout)
}

// ParseTimestamp accepts a time.Time or an ISO-8601 string and returns its
// UTC form. Unparseable input returns ok=false rather than an error — the
// store treats this as absence, not failure.
func ParseTimestamp(v interface{}) (t time.Time, ok bool) {
	switch val := v.(type) {
	case time.Time:
		return ToUTC(val), true
	case string:
		s := val
		if strings.HasSuffix(s, "Z") {
			s = strings.TrimSuffix(s, "Z") + "+00:00"
		}
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999-07:00",
			"2006-01-02T15:04:05-07:00",
			"2006-01-02",
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return ToUTC(parsed), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// TieBreakLess reports whether record (tsA, idA) sorts strictly before
// record (tsB, idB) under the store's deterministic tie-break key:
// (canonical_utc_timestamp, id), compared lexicographically on id.
func TieBreakLess(tsA time.Time, idA string, tsB time.Time, idB string) bool {
	a, b := ToUTC(tsA), ToUTC(tsB)
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}

// normalizeWindow applies the facade's "start or epoch, end or now"
// convention: a zero start means the epoch, a zero end means time.Now().
func normalizeWindow(start, end time.Time) (time.Time, time.Time) {
	if start.IsZero() {
		start = epochTime
	}
	if end.IsZero() {
		end = time.Now()
	}
	return ToUTC(start), ToUTC(end)
}

// iterDays enumerates every calendar day in [start.date, end.date] inclusive,
// as ISO date strings, in chronological (and therefore lexicographic) order.
func iterDays(start, end time.Time) []string {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(partitionDayLayout))
	}
	return days
}
