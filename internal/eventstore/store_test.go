// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func mustParseRFC3339(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return ts.UTC()
}

func sig(t *testing.T, id, ts, source string, payload map[string]interface{}) *SignalEnvelope {
	return &SignalEnvelope{
		SignalID:      id,
		SchemaVersion: "0.1",
		Source:        source,
		Timestamp:     mustParseRFC3339(t, ts),
		Payload:       payload,
	}
}

func em(t *testing.T, id, ts, causedBy, emissionType string, payload map[string]interface{}) *EmissionEnvelope {
	return &EmissionEnvelope{
		EmissionID:    id,
		SchemaVersion: "0.1",
		CausedBy:      causedBy,
		EmissionType:  emissionType,
		Timestamp:     mustParseRFC3339(t, ts),
		Payload:       payload,
	}
}

// Seed scenario 1: round-trip.
func TestRoundTrip(t *testing.T) {
	s := mustOpen(t)

	s1 := sig(t, "s-1", "2026-02-05T10:00:00Z", "ingest", nil)
	if _, err := s.WriteSignal(s1, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignal: %v", err)
	}
	e1 := em(t, "e-1", "2026-02-05T11:00:00Z", "s-1", "OutcomeSuccess", nil)
	if _, err := s.WriteEmission(e1, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteEmission: %v", err)
	}

	start := mustParseRFC3339(t, "2026-02-05T00:00:00Z")
	end := mustParseRFC3339(t, "2026-02-05T23:59:00Z")

	sigOut, sigErr := s.IterSignals(start, end, SignalFilter{})
	signals, err := collectSignals(sigOut, sigErr)
	if err != nil {
		t.Fatalf("IterSignals: %v", err)
	}
	if len(signals) != 1 || signals[0].SignalID != "s-1" {
		t.Fatalf("expected exactly [s-1], got %+v", signals)
	}

	emOut, emErr := s.IterEmissions(start, end, EmissionFilter{})
	emissions, err := collectEmissions(emOut, emErr)
	if err != nil {
		t.Fatalf("IterEmissions: %v", err)
	}
	if len(emissions) != 1 || emissions[0].EmissionID != "e-1" {
		t.Fatalf("expected exactly [e-1], got %+v", emissions)
	}
}

// Seed scenario 2: duplicate return-existing.
func TestDuplicateReturnsExistingPath(t *testing.T) {
	s := mustOpen(t)

	first := sig(t, "s-dup", "2026-02-05T10:00:00Z", "ingest", map[string]interface{}{"attempt": 1})
	firstPath, err := s.WriteSignal(first, OnDuplicateReturnExisting)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}

	second := sig(t, "s-dup", "2026-02-06T10:00:00Z", "ingest", map[string]interface{}{"attempt": 2})
	secondPath, err := s.WriteSignal(second, OnDuplicateReturnExisting)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if secondPath != firstPath {
		t.Fatalf("expected second write to return first path %q, got %q", firstPath, secondPath)
	}

	out, errc := s.IterSignals(epochTime, time.Now().UTC(), SignalFilter{})
	signals, err := collectSignals(out, errc)
	if err != nil {
		t.Fatalf("IterSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(signals))
	}
	if got, _ := numericPayloadField(signals[0].Payload, "attempt"); got != 1 {
		t.Fatalf("expected attempt=1, got %v", got)
	}
}

func TestWriteSignalRaisesOnDuplicate(t *testing.T) {
	s := mustOpen(t)
	a := sig(t, "s-raise", "2026-02-05T10:00:00Z", "ingest", nil)
	if _, err := s.WriteSignal(a, OnDuplicateRaise); err != nil {
		t.Fatalf("first write: %v", err)
	}
	b := sig(t, "s-raise", "2026-02-05T11:00:00Z", "ingest", nil)
	_, err := s.WriteSignal(b, OnDuplicateRaise)
	if err == nil {
		t.Fatal("expected DuplicateEventError")
	}
	if _, ok := err.(*DuplicateEventError); !ok {
		t.Fatalf("expected *DuplicateEventError, got %T: %v", err, err)
	}
}

// Seed scenario 3: checkpoint resume.
func TestCheckpointResume(t *testing.T) {
	s := mustOpen(t)

	c1 := sig(t, "s-c1", "2026-02-05T10:00:00Z", "ingest", nil)
	c2 := sig(t, "s-c2", "2026-02-05T10:00:00Z", "ingest", nil)
	c3 := sig(t, "s-c3", "2026-02-05T10:01:00Z", "ingest", nil)
	c4 := sig(t, "s-c4", "2026-02-05T10:02:00Z", "ingest", nil)
	if _, err := s.WriteSignals([]*SignalEnvelope{c1, c2, c3, c4}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	checkpoint, err := BuildSignalCheckpoint([]*SignalEnvelope{c1, c2})
	if err != nil {
		t.Fatalf("BuildSignalCheckpoint: %v", err)
	}
	if checkpoint == nil {
		t.Fatal("expected non-nil checkpoint")
	}

	start := mustParseRFC3339(t, "2026-02-05T00:00:00Z")
	end := mustParseRFC3339(t, "2026-02-05T23:59:00Z")
	out, errc := s.IterSignalsFromCheckpoint(start, end, checkpoint, SignalFilter{})
	resumed, err := collectSignals(out, errc)
	if err != nil {
		t.Fatalf("IterSignalsFromCheckpoint: %v", err)
	}
	if len(resumed) != 2 || resumed[0].SignalID != "s-c3" || resumed[1].SignalID != "s-c4" {
		t.Fatalf("expected [s-c3, s-c4], got %+v", idsOfSignals(resumed))
	}
}

func idsOfSignals(envs []*SignalEnvelope) []string {
	ids := make([]string, len(envs))
	for i, e := range envs {
		ids[i] = e.SignalID
	}
	return ids
}

// Seed scenario 4: top-K uniqueness.
func TestTopRecommendationCandidatesUniqueByEntity(t *testing.T) {
	s := mustOpen(t)

	a := EntityRef{RefType: "show", Value: "a"}
	b := EntityRef{RefType: "show", Value: "b"}
	c := EntityRef{RefType: "show", Value: "c"}

	r1 := sig(t, "s-rec1", "2026-02-05T10:00:00Z", "recommend", map[string]interface{}{"score": 0.7})
	r1.EntityRefs = []EntityRef{a}
	r2 := sig(t, "s-rec2", "2026-02-05T10:01:00Z", "recommend", map[string]interface{}{"score": 0.9})
	r2.EntityRefs = []EntityRef{b}
	r3 := sig(t, "s-rec3", "2026-02-05T10:02:00Z", "recommend", map[string]interface{}{"score": 0.85})
	r3.EntityRefs = []EntityRef{c}
	r4 := sig(t, "s-rec4", "2026-02-05T10:03:00Z", "recommend", map[string]interface{}{"score": 0.1})
	r4.EntityRefs = []EntityRef{b}

	if _, err := s.WriteSignals([]*SignalEnvelope{r1, r2, r3, r4}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	start := mustParseRFC3339(t, "2026-02-05T00:00:00Z")
	end := mustParseRFC3339(t, "2026-02-05T23:59:00Z")
	top, err := s.GetTopRecommendationCandidates(start, end, 3, nil, nil, "score", true)
	if err != nil {
		t.Fatalf("GetTopRecommendationCandidates: %v", err)
	}
	got := idsOfSignals(top)
	want := []string{"s-rec2", "s-rec3", "s-rec1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// NaN cannot be encoded as a JSON partition line, so the ranking used by
// GetTopRecommendationCandidates is exercised directly on in-memory envelopes.
func TestTopRecommendationCandidatesDropsNaN(t *testing.T) {
	good := sig(t, "s-good", "2026-02-05T10:00:00Z", "recommend", map[string]interface{}{"score": 0.5})
	bad := sig(t, "s-bad", "2026-02-05T10:01:00Z", "recommend", map[string]interface{}{"score": math.NaN()})
	top := rankByScore([]*SignalEnvelope{good, bad}, nil, "score", "", false, 10)
	if len(top) != 1 || top[0].SignalID != "s-good" {
		t.Fatalf("expected NaN-scored candidate dropped, got %v", idsOfSignals(top))
	}
}

// Seed scenario 5: outcome buckets.
func TestOutcomeWindowBuckets(t *testing.T) {
	s := mustOpen(t)

	o1 := sig(t, "o1", "2026-02-05T09:00:00Z", "ingest", map[string]interface{}{"expires_at": "2026-02-05T11:00:00Z"})
	o1.PayloadType = "OutcomePending"
	o2 := sig(t, "o2", "2026-02-05T09:05:00Z", "ingest", map[string]interface{}{"expires_at": "2026-02-05T20:00:00Z"})
	o2.PayloadType = "OutcomePending"
	o3 := sig(t, "o3", "2026-02-05T09:10:00Z", "ingest", map[string]interface{}{"expires_at": "2026-02-05T20:00:00Z"})
	o3.PayloadType = "OutcomePending"
	o4 := sig(t, "o4", "2026-02-05T09:15:00Z", "ingest", map[string]interface{}{"expires_at": "2026-02-05T20:00:00Z"})
	o4.PayloadType = "OutcomePending"
	if _, err := s.WriteSignals([]*SignalEnvelope{o1, o2, o3, o4}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	eo1 := em(t, "e-o1", "2026-02-05T09:30:00Z", "o3", "OutcomeSuccess", nil)
	eo2 := em(t, "e-o2", "2026-02-05T09:31:00Z", "o4", "OutcomeFailure", nil)
	if _, err := s.WriteEmissions([]*EmissionEnvelope{eo1, eo2}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteEmissions: %v", err)
	}

	now := mustParseRFC3339(t, "2026-02-05T12:00:00Z")
	start := mustParseRFC3339(t, "2026-02-05T00:00:00Z")
	end := mustParseRFC3339(t, "2026-02-05T23:59:00Z")

	buckets, err := s.GetOutcomeWindowBuckets(now, start, end, nil, nil, nil, "expires_at")
	if err != nil {
		t.Fatalf("GetOutcomeWindowBuckets: %v", err)
	}
	if len(buckets.Pending) != 1 || buckets.Pending[0].SignalID != "o2" {
		t.Fatalf("expected pending=[o2], got %v", idsOfSignals(buckets.Pending))
	}
	if len(buckets.Expired) != 1 || buckets.Expired[0].SignalID != "o1" {
		t.Fatalf("expected expired=[o1], got %v", idsOfSignals(buckets.Expired))
	}
	if len(buckets.Success) != 1 || buckets.Success[0].EmissionID != "e-o1" {
		t.Fatalf("expected success=[e-o1]")
	}
	if len(buckets.Failure) != 1 || buckets.Failure[0].EmissionID != "e-o2" {
		t.Fatalf("expected failure=[e-o2]")
	}
}

// Seed scenario 6: snapshot idempotence.
func TestSnapshotRerunIsByteIdentical(t *testing.T) {
	s := mustOpen(t)
	day := "2026-02-05"
	digest := map[string]interface{}{"total": 4, "unique_entities": 3}

	path1, err := s.WriteDailyDigestSnapshot(day, digest)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	bytes1, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	path2, err := s.WriteDailyDigestSnapshot(day, digest)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if path2 != path1 {
		t.Fatalf("expected same path on rerun, got %q vs %q", path1, path2)
	}
	bytes2, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(bytes1) != string(bytes2) {
		t.Fatalf("expected byte-identical snapshot, got %q vs %q", bytes1, bytes2)
	}

	entries, err := os.ReadDir(filepath.Dir(path1))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	count := 0
	for _, e := range entries {
		if ok, _ := filepath.Match("digest__"+day+"*.json", e.Name()); ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one digest file, found %d", count)
	}
}

// Scan boundary invariant: records at exactly start and exactly end are
// included.
func TestScanBoundaryInclusive(t *testing.T) {
	s := mustOpen(t)
	start := mustParseRFC3339(t, "2026-02-05T00:00:00Z")
	end := mustParseRFC3339(t, "2026-02-05T23:59:00Z")

	atStart := sig(t, "s-start", start.Format(time.RFC3339), "ingest", nil)
	atEnd := sig(t, "s-end", end.Format(time.RFC3339), "ingest", nil)
	if _, err := s.WriteSignals([]*SignalEnvelope{atStart, atEnd}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	out, errc := s.IterSignals(start, end, SignalFilter{})
	signals, err := collectSignals(out, errc)
	if err != nil {
		t.Fatalf("IterSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected both boundary records included, got %v", idsOfSignals(signals))
	}
}

func TestPartitionInvariant(t *testing.T) {
	s := mustOpen(t)
	env := sig(t, "s-part", "2026-02-05T23:30:00Z", "ingest", nil)
	path, err := s.WriteSignal(env, OnDuplicateRaise)
	if err != nil {
		t.Fatalf("WriteSignal: %v", err)
	}
	if filepath.Base(path) != "2026-02-05.jsonl" {
		t.Fatalf("expected partition file 2026-02-05.jsonl, got %s", filepath.Base(path))
	}
}

func TestEntityRefMarshalsKeysAlphabetically(t *testing.T) {
	ref := EntityRef{RefType: "show", Platform: "netflix", Value: "x"}
	data, err := json.Marshal(ref)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"platform":"netflix","ref_type":"show","value":"x"}`
	if string(data) != want {
		t.Fatalf("expected alphabetically ordered keys %s, got %s", want, data)
	}
}

func TestEntityCandidateStreamClassifiesResolution(t *testing.T) {
	s := mustOpen(t)
	resolved := sig(t, "s-resolved", "2026-02-05T10:00:00Z", "ingest", nil)
	resolved.EntityRefs = []EntityRef{{RefType: "show", Value: "x"}}
	unresolved := sig(t, "s-unresolved", "2026-02-05T10:01:00Z", "ingest", nil)
	if _, err := s.WriteSignals([]*SignalEnvelope{resolved, unresolved}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	start := epochTime
	end := time.Now().UTC()
	yes := true
	out, errc := s.IterEntityCandidateSignals(start, end, &yes)
	got, err := collectSignals(out, errc)
	if err != nil {
		t.Fatalf("IterEntityCandidateSignals: %v", err)
	}
	if len(got) != 1 || got[0].SignalID != "s-resolved" {
		t.Fatalf("expected only resolved signal, got %v", idsOfSignals(got))
	}

	no := false
	out2, errc2 := s.IterEntityCandidateSignals(start, end, &no)
	got2, err := collectSignals(out2, errc2)
	if err != nil {
		t.Fatalf("IterEntityCandidateSignals: %v", err)
	}
	if len(got2) != 1 || got2[0].SignalID != "s-unresolved" {
		t.Fatalf("expected only unresolved signal, got %v", idsOfSignals(got2))
	}
}

func TestStageWindowSignalsFiltersByDottedPrefix(t *testing.T) {
	s := mustOpen(t)
	a := sig(t, "s-route-a", "2026-02-05T10:00:00Z", "route.fetch", nil)
	b := sig(t, "s-route-b", "2026-02-05T10:01:00Z", "route.publish", nil)
	c := sig(t, "s-other", "2026-02-05T10:02:00Z", "ingest", nil)
	if _, err := s.WriteSignals([]*SignalEnvelope{a, b, c}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	start := epochTime
	end := time.Now().UTC()
	out, errc := s.IterStageWindowSignals("route", start, end, nil, nil, nil)
	got, err := collectSignals(out, errc)
	if err != nil {
		t.Fatalf("IterStageWindowSignals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two route.* signals, got %v", idsOfSignals(got))
	}
}

func TestGetLastPostsByEntityFiltersRawIngestion(t *testing.T) {
	s := mustOpen(t)
	ref := EntityRef{RefType: "show", Value: "x"}
	post := sig(t, "s-post", "2026-02-05T10:00:00Z", "ingest", nil)
	post.EntityRefs = []EntityRef{ref}
	post.PayloadType = "SocialPostSeen"
	other := sig(t, "s-other", "2026-02-05T10:01:00Z", "ingest", nil)
	other.EntityRefs = []EntityRef{ref}
	other.PayloadType = "EntityResolved"
	if _, err := s.WriteSignals([]*SignalEnvelope{post, other}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}

	posts, err := s.GetLastPostsByEntity(ref, 10, epochTime, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetLastPostsByEntity: %v", err)
	}
	if len(posts) != 1 || posts[0].SignalID != "s-post" {
		t.Fatalf("expected only SocialPostSeen signal, got %v", idsOfSignals(posts))
	}
}

func TestStatsReportsPartitionFilesAndIndexSize(t *testing.T) {
	s := mustOpen(t)
	a := sig(t, "s-a", "2026-02-05T10:00:00Z", "ingest", nil)
	b := sig(t, "s-b", "2026-02-06T10:00:00Z", "ingest", nil)
	if _, err := s.WriteSignals([]*SignalEnvelope{a, b}, OnDuplicateRaise); err != nil {
		t.Fatalf("WriteSignals: %v", err)
	}
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SignalPartitionFiles != 2 {
		t.Fatalf("expected 2 signal partition files, got %d", stats.SignalPartitionFiles)
	}
	if stats.SignalIndexSize != 2 {
		t.Fatalf("expected signal index size 2, got %d", stats.SignalIndexSize)
	}
}
