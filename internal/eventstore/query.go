// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"math"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultScoreField is the payload key top_recommendation_candidates and
// ready_candidates rank by when the caller doesn't name one.
const DefaultScoreField = "score"

// Closed default sets for outcome-bucket classification. Callers may
// override any of these by passing an explicit set.
var (
	defaultPendingPayloadTypes  = []string{"OutcomePending", "EvaluationRequested", "RecommendationAttempted"}
	defaultSuccessEmissionTypes = []string{"OutcomeSuccess", "DraftApproved"}
	defaultFailureEmissionTypes = []string{"OutcomeFailure", "DraftRejected"}
	rawIngestionPayloadTypes    = []string{"SocialPostSeen"}
)

func sortSignalsDesc(envs []*SignalEnvelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		ta, tb := ToUTC(a.Timestamp), ToUTC(b.Timestamp)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.SignalID > b.SignalID
	})
}

func sortEmissionsDesc(envs []*EmissionEnvelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		ta, tb := ToUTC(a.Timestamp), ToUTC(b.Timestamp)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.EmissionID > b.EmissionID
	})
}

func sortSignalsAsc(envs []*SignalEnvelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		return TieBreakLess(a.Timestamp, a.SignalID, b.Timestamp, b.SignalID)
	})
}

func sortEmissionsAsc(envs []*EmissionEnvelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		return TieBreakLess(a.Timestamp, a.EmissionID, b.Timestamp, b.EmissionID)
	})
}

// GetRecentSignalsByEntity scans [start or epoch, end or now], sorts by
// (timestamp desc, id desc), and returns the first limit results. limit <= 0
// yields an empty slice.
func (s *Store) GetRecentSignalsByEntity(entityRef EntityRef, limit int, start, end time.Time) ([]*SignalEnvelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{EntityRef: &entityRef})
	results, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	sortSignalsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetRecentSignalsBySource mirrors GetRecentSignalsByEntity, filtered by
// exact source match.
func (s *Store) GetRecentSignalsBySource(source string, limit int, start, end time.Time) ([]*SignalEnvelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{Sources: []string{source}})
	results, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	sortSignalsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// IterEntityCandidateSignals streams signals in [start, end], optionally
// filtered by resolution state: resolved=true keeps only resolved signals,
// resolved=false keeps only unresolved ones, nil admits both.
func (s *Store) IterEntityCandidateSignals(start, end time.Time, resolved *bool) (<-chan *SignalEnvelope, <-chan error) {
	start, end = normalizeWindow(start, end)
	in, errc := s.IterSignals(start, end, SignalFilter{})
	out := make(chan *SignalEnvelope, 64)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		for env := range in {
			if resolved != nil && env.IsResolved() != *resolved {
				continue
			}
			out <- env
		}
		if err := <-errc; err != nil {
			outErr <- err
		}
	}()
	return out, outErr
}

// IterStageWindowSignals replays a checkpointed window restricted to a
// worker stage: when sources is empty, admits signals whose source equals
// stage or starts with "stage.". An optional payloadTypes allow-list is
// applied after the source filter.
func (s *Store) IterStageWindowSignals(stage string, start, end time.Time, checkpoint *ReplayCheckpoint, sources []string, payloadTypes []string) (<-chan *SignalEnvelope, <-chan error) {
	start, end = normalizeWindow(start, end)
	var in <-chan *SignalEnvelope
	var errc <-chan error
	if checkpoint != nil {
		in, errc = s.IterSignalsFromCheckpoint(start, end, checkpoint, SignalFilter{})
	} else {
		in, errc = s.IterSignals(start, end, SignalFilter{})
	}
	sourceSet := toSet(sources)
	payloadSet := toSet(payloadTypes)
	stagePrefix := stage + "."

	out := make(chan *SignalEnvelope, 64)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		for env := range in {
			if sourceSet != nil {
				if _, ok := sourceSet[env.Source]; !ok {
					continue
				}
			} else if env.Source != stage && !strings.HasPrefix(env.Source, stagePrefix) {
				continue
			}
			if payloadSet != nil {
				if _, ok := payloadSet[env.PayloadType]; !ok {
					continue
				}
			}
			out <- env
		}
		if err := <-errc; err != nil {
			outErr <- err
		}
	}()
	return out, outErr
}

func (s *Store) iterCheckpointedWithPayloadFilter(start, end time.Time, checkpoint *ReplayCheckpoint, sources []string, payloadTypes []string) (<-chan *SignalEnvelope, <-chan error) {
	start, end = normalizeWindow(start, end)
	filter := SignalFilter{Sources: sources}
	var in <-chan *SignalEnvelope
	var errc <-chan error
	if checkpoint != nil {
		in, errc = s.IterSignalsFromCheckpoint(start, end, checkpoint, filter)
	} else {
		in, errc = s.IterSignals(start, end, filter)
	}
	if len(payloadTypes) == 0 {
		return in, errc
	}
	payloadSet := toSet(payloadTypes)
	out := make(chan *SignalEnvelope, 64)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)
		for env := range in {
			if _, ok := payloadSet[env.PayloadType]; !ok {
				continue
			}
			out <- env
		}
		if err := <-errc; err != nil {
			outErr <- err
		}
	}()
	return out, outErr
}

// IterRecommendationSignals is a thin checkpointed-replay alias with an
// optional payload-type allow-list.
func (s *Store) IterRecommendationSignals(start, end time.Time, checkpoint *ReplayCheckpoint, sources []string, payloadTypes []string) (<-chan *SignalEnvelope, <-chan error) {
	return s.iterCheckpointedWithPayloadFilter(start, end, checkpoint, sources, payloadTypes)
}

// IterLearningSignals mirrors IterRecommendationSignals.
func (s *Store) IterLearningSignals(start, end time.Time, checkpoint *ReplayCheckpoint, sources []string, payloadTypes []string) (<-chan *SignalEnvelope, <-chan error) {
	return s.iterCheckpointedWithPayloadFilter(start, end, checkpoint, sources, payloadTypes)
}

type scoredCandidate struct {
	env   *SignalEnvelope
	score float64
}

func numericPayloadField(payload map[string]interface{}, field string) (float64, bool) {
	v, ok := payload[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func entityDedupKey(env *SignalEnvelope) string {
	if len(env.EntityRefs) > 0 {
		return env.EntityRefs[0].Key()
	}
	return "signal:" + env.SignalID
}

// rankByScore ranks envs by (payload[scoreField] desc, timestamp desc, id
// desc), skipping records without a numeric, non-NaN score or (when
// requireStatus is non-empty) without a matching payload["status"]. With
// uniqueByEntity it keeps only the top-ranked signal per entity key.
func rankByScore(envs []*SignalEnvelope, payloadTypes []string, scoreField, requireStatus string, uniqueByEntity bool, limit int) []*SignalEnvelope {
	if limit <= 0 {
		return nil
	}
	if scoreField == "" {
		scoreField = DefaultScoreField
	}
	payloadSet := toSet(payloadTypes)

	var candidates []scoredCandidate
	for _, env := range envs {
		if payloadSet != nil {
			if _, ok := payloadSet[env.PayloadType]; !ok {
				continue
			}
		}
		if requireStatus != "" {
			status, ok := env.Payload["status"].(string)
			if !ok || status != requireStatus {
				continue
			}
		}
		score, ok := numericPayloadField(env.Payload, scoreField)
		if !ok || math.IsNaN(score) {
			continue
		}
		candidates = append(candidates, scoredCandidate{env: env, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ta, tb := ToUTC(a.env.Timestamp), ToUTC(b.env.Timestamp)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.env.SignalID > b.env.SignalID
	})

	var results []*SignalEnvelope
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if uniqueByEntity {
			key := entityDedupKey(c.env)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		results = append(results, c.env)
		if len(results) >= limit {
			break
		}
	}
	return results
}

// GetTopRecommendationCandidates scans [start, end], ranks signals whose
// payload[scoreField] is numeric by (score desc, timestamp desc, id desc),
// optionally deduplicating to one candidate per entity, and returns the top
// limit.
func (s *Store) GetTopRecommendationCandidates(start, end time.Time, limit int, sources []string, payloadTypes []string, scoreField string, uniqueByEntity bool) ([]*SignalEnvelope, error) {
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{Sources: sources})
	envs, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	return rankByScore(envs, payloadTypes, scoreField, "", uniqueByEntity, limit), nil
}

// GetReadyCandidates mirrors GetTopRecommendationCandidates, additionally
// requiring payload["status"] == "READY" (string-exact; missing status
// excludes the candidate rather than defaulting it).
func (s *Store) GetReadyCandidates(start, end time.Time, limit int, sources []string, payloadTypes []string, scoreField string, uniqueByEntity bool) ([]*SignalEnvelope, error) {
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{Sources: sources})
	envs, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	return rankByScore(envs, payloadTypes, scoreField, "READY", uniqueByEntity, limit), nil
}

// GetLastPostsByEntity is a recency query restricted to raw-ingestion
// payload types (SocialPostSeen), for one entity.
func (s *Store) GetLastPostsByEntity(entityRef EntityRef, limit int, start, end time.Time) ([]*SignalEnvelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{EntityRef: &entityRef})
	envs, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	typeSet := toSet(rawIngestionPayloadTypes)
	filtered := envs[:0:0]
	for _, env := range envs {
		if _, ok := typeSet[env.PayloadType]; ok {
			filtered = append(filtered, env)
		}
	}
	sortSignalsDesc(filtered)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// GetLatestDraftSignals is a recency query with an optional payload-type
// allow-list, applied before the limit cutoff.
func (s *Store) GetLatestDraftSignals(limit int, start, end time.Time, entityRef *EntityRef, sources []string, payloadTypes []string) ([]*SignalEnvelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	start, end = normalizeWindow(start, end)
	out, errc := s.IterSignals(start, end, SignalFilter{EntityRef: entityRef, Sources: sources})
	envs, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	if len(payloadTypes) > 0 {
		payloadSet := toSet(payloadTypes)
		filtered := envs[:0:0]
		for _, env := range envs {
			if _, ok := payloadSet[env.PayloadType]; ok {
				filtered = append(filtered, env)
			}
		}
		envs = filtered
	}
	sortSignalsDesc(envs)
	if len(envs) > limit {
		envs = envs[:limit]
	}
	return envs, nil
}

// GetLatestApprovalOutcomes mirrors GetLatestDraftSignals over emissions with
// an optional emission-type allow-list.
func (s *Store) GetLatestApprovalOutcomes(limit int, start, end time.Time, entityRef *EntityRef, emissionTypes []string) ([]*EmissionEnvelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	start, end = normalizeWindow(start, end)
	out, errc := s.IterEmissions(start, end, EmissionFilter{EntityRef: entityRef, EmissionTypes: emissionTypes})
	envs, err := collectEmissions(out, errc)
	if err != nil {
		return nil, err
	}
	sortEmissionsDesc(envs)
	if len(envs) > limit {
		envs = envs[:limit]
	}
	return envs, nil
}

// GetOutcomesForWindow is a thin emission-scan alias used by snapshot
// producers that don't need the outcome-bucket machinery.
func (s *Store) GetOutcomesForWindow(start, end time.Time, entityRef *EntityRef, emissionTypes []string) ([]*EmissionEnvelope, error) {
	start, end = normalizeWindow(start, end)
	out, errc := s.IterEmissions(start, end, EmissionFilter{EntityRef: entityRef, EmissionTypes: emissionTypes})
	return collectEmissions(out, errc)
}

func nonEmptyOr(provided, fallback []string) []string {
	if len(provided) > 0 {
		return provided
	}
	return fallback
}

// resolvedCauses scans emissions in [start, end] and returns the set of
// signal ids already resolved by a success/failure emission, plus the
// matching emissions themselves.
func (s *Store) resolvedCauses(start, end time.Time, successTypes, failureTypes []string) (map[string]struct{}, []*EmissionEnvelope, []*EmissionEnvelope, error) {
	out, errc := s.IterEmissions(start, end, EmissionFilter{})
	emissions, err := collectEmissions(out, errc)
	if err != nil {
		return nil, nil, nil, err
	}
	successSet := toSet(successTypes)
	failureSet := toSet(failureTypes)
	resolved := make(map[string]struct{})
	var success, failure []*EmissionEnvelope
	for _, em := range emissions {
		if _, ok := successSet[em.EmissionType]; ok {
			resolved[em.CausedBy] = struct{}{}
			success = append(success, em)
			continue
		}
		if _, ok := failureSet[em.EmissionType]; ok {
			resolved[em.CausedBy] = struct{}{}
			failure = append(failure, em)
		}
	}
	return resolved, success, failure, nil
}

// GetUnresolvedOutcomeSignals returns pending signals (payload_type in
// pendingTypes) whose signal_id has no success/failure emission in the
// window, sorted ascending by (timestamp, id).
func (s *Store) GetUnresolvedOutcomeSignals(start, end time.Time, pendingTypes, successTypes, failureTypes []string) ([]*SignalEnvelope, error) {
	pendingTypes = nonEmptyOr(pendingTypes, defaultPendingPayloadTypes)
	successTypes = nonEmptyOr(successTypes, defaultSuccessEmissionTypes)
	failureTypes = nonEmptyOr(failureTypes, defaultFailureEmissionTypes)

	start, end = normalizeWindow(start, end)
	resolved, _, _, err := s.resolvedCauses(start, end, successTypes, failureTypes)
	if err != nil {
		return nil, err
	}
	out, errc := s.IterSignals(start, end, SignalFilter{})
	signals, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	pendingSet := toSet(pendingTypes)
	var unresolved []*SignalEnvelope
	for _, sig := range signals {
		if _, ok := pendingSet[sig.PayloadType]; !ok {
			continue
		}
		if _, ok := resolved[sig.SignalID]; ok {
			continue
		}
		unresolved = append(unresolved, sig)
	}
	sortSignalsAsc(unresolved)
	return unresolved, nil
}

// GetExpiredOutcomeSignals narrows the unresolved set to those whose
// payload[expiresAtField] parses to an instant strictly before now.
func (s *Store) GetExpiredOutcomeSignals(now, start, end time.Time, pendingTypes, successTypes, failureTypes []string, expiresAtField string) ([]*SignalEnvelope, error) {
	unresolved, err := s.GetUnresolvedOutcomeSignals(start, end, pendingTypes, successTypes, failureTypes)
	if err != nil {
		return nil, err
	}
	nowUTC := ToUTC(now)
	var expired []*SignalEnvelope
	for _, sig := range unresolved {
		raw, ok := sig.Payload[expiresAtField]
		if !ok {
			continue
		}
		expiresAt, ok := ParseTimestamp(raw)
		if !ok {
			continue
		}
		if expiresAt.Before(nowUTC) {
			expired = append(expired, sig)
		}
	}
	return expired, nil
}

// OutcomeWindowBuckets partitions a window's pending signals and emissions
// into pending, expired, success, and failure buckets.
type OutcomeWindowBuckets struct {
	Pending []*SignalEnvelope
	Expired []*SignalEnvelope
	Success []*EmissionEnvelope
	Failure []*EmissionEnvelope
}

// GetOutcomeWindowBuckets computes pending = unresolved minus expired, with
// success/failure emissions sorted ascending by (timestamp, id).
func (s *Store) GetOutcomeWindowBuckets(now, start, end time.Time, pendingTypes, successTypes, failureTypes []string, expiresAtField string) (*OutcomeWindowBuckets, error) {
	pendingTypes = nonEmptyOr(pendingTypes, defaultPendingPayloadTypes)
	successTypes = nonEmptyOr(successTypes, defaultSuccessEmissionTypes)
	failureTypes = nonEmptyOr(failureTypes, defaultFailureEmissionTypes)

	start, end = normalizeWindow(start, end)
	resolved, success, failure, err := s.resolvedCauses(start, end, successTypes, failureTypes)
	if err != nil {
		return nil, err
	}
	out, errc := s.IterSignals(start, end, SignalFilter{})
	signals, err := collectSignals(out, errc)
	if err != nil {
		return nil, err
	}
	pendingSet := toSet(pendingTypes)
	nowUTC := ToUTC(now)

	var pending, expired []*SignalEnvelope
	for _, sig := range signals {
		if _, ok := pendingSet[sig.PayloadType]; !ok {
			continue
		}
		if _, ok := resolved[sig.SignalID]; ok {
			continue
		}
		if raw, ok := sig.Payload[expiresAtField]; ok {
			if expiresAt, ok := ParseTimestamp(raw); ok && expiresAt.Before(nowUTC) {
				expired = append(expired, sig)
				continue
			}
		}
		pending = append(pending, sig)
	}

	sortSignalsAsc(pending)
	sortSignalsAsc(expired)
	sortEmissionsAsc(success)
	sortEmissionsAsc(failure)

	return &OutcomeWindowBuckets{Pending: pending, Expired: expired, Success: success, Failure: failure}, nil
}
