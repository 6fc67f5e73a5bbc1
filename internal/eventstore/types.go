// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventstore

import (
	"time"

	"github.com/metaspn/eventstore/internal/validation"
)

// DuplicatePolicy controls how the Append Writer resolves a write whose id
// already exists in the dedup index.
type DuplicatePolicy string

const (
	// OnDuplicateIgnore returns the existing partition path without writing.
	OnDuplicateIgnore DuplicatePolicy = "ignore"
	// OnDuplicateReturnExisting behaves identically to OnDuplicateIgnore;
	// both names are accepted because callers reach for either spelling.
	OnDuplicateReturnExisting DuplicatePolicy = "return_existing"
	// OnDuplicateRaise signals a *DuplicateEventError instead of writing.
	OnDuplicateRaise DuplicatePolicy = "raise"
)

func validDuplicatePolicy(p DuplicatePolicy) bool {
	switch p {
	case OnDuplicateIgnore, OnDuplicateReturnExisting, OnDuplicateRaise:
		return true
	}
	return false
}

// EntityRef is a value object identifying an external entity. Equality is
// component-wise; two refs with the same fields are interchangeable for
// membership tests against an envelope's EntityRefs.
type EntityRef struct {
	Platform string `json:"platform,omitempty"`
	RefType  string `json:"ref_type"`
	Value    string `json:"value"`
}

// Key returns a stable string form suitable for map/dedup keys.
func (r EntityRef) Key() string {
	return r.RefType + ":" + r.Platform + ":" + r.Value
}

func hasEntityRef(refs []EntityRef, ref EntityRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// resolvedPayloadTypes is the closed set of payload types that mark a signal
// as already entity-resolved even with an empty EntityRefs sequence.
var resolvedPayloadTypes = []string{"EntityResolved", "EntityMerged", "EntityAliasAdded"}

// SignalEnvelope is an observed input event. Fields are ordered to match the
// record's canonical (alphabetical) wire-format key order.
type SignalEnvelope struct {
	EntityRefs    []EntityRef            `json:"entity_refs"`
	Payload       map[string]interface{} `json:"payload"`
	PayloadType   string                 `json:"payload_type"`
	SchemaVersion string                 `json:"schema_version" validate:"required"`
	SignalID      string                 `json:"signal_id" validate:"required"`
	Source        string                 `json:"source"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Validate enforces the envelope's required-field invariants: a non-empty
// signal_id and schema_version.
func (s *SignalEnvelope) Validate() error {
	if err := validation.ValidateStruct(s); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// HasEntityRef reports whether ref appears in the signal's EntityRefs.
func (s *SignalEnvelope) HasEntityRef(ref EntityRef) bool {
	return hasEntityRef(s.EntityRefs, ref)
}

// IsResolved classifies the signal per the entity-candidate-stream rule:
// resolved iff EntityRefs is non-empty, or PayloadType names a resolution
// event.
func (s *SignalEnvelope) IsResolved() bool {
	if len(s.EntityRefs) > 0 {
		return true
	}
	for _, pt := range resolvedPayloadTypes {
		if s.PayloadType == pt {
			return true
		}
	}
	return false
}

// EmissionEnvelope is a downstream result produced from a signal. It mirrors
// SignalEnvelope with emission_id/emission_type in place of
// signal_id/payload_type, plus caused_by linking back to the producing
// signal.
type EmissionEnvelope struct {
	CausedBy      string                 `json:"caused_by"`
	EmissionID    string                 `json:"emission_id" validate:"required"`
	EmissionType  string                 `json:"emission_type"`
	EntityRefs    []EntityRef            `json:"entity_refs"`
	Payload       map[string]interface{} `json:"payload"`
	SchemaVersion string                 `json:"schema_version" validate:"required"`
	Source        string                 `json:"source"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Validate enforces the envelope's required-field invariants: a non-empty
// emission_id and schema_version.
func (e *EmissionEnvelope) Validate() error {
	if err := validation.ValidateStruct(e); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// HasEntityRef reports whether ref appears in the emission's EntityRefs.
func (e *EmissionEnvelope) HasEntityRef(ref EntityRef) bool {
	return hasEntityRef(e.EntityRefs, ref)
}

func translateValidationError(err *validation.RequestValidationError) error {
	fieldErrs := err.Errors()
	if len(fieldErrs) == 0 {
		return &InvalidInputError{Field: "unknown", Reason: err.Error()}
	}
	first := fieldErrs[0]
	return &InvalidInputError{Field: first.Field(), Reason: first.Error()}
}

// ReplayCheckpoint is a resume token: the maximum timestamp observed in a
// processed prefix of a replayed stream, and the ids seen at exactly that
// instant (first-seen order, deduplicated).
type ReplayCheckpoint struct {
	LastTimestamp      time.Time `json:"last_timestamp"`
	SchemaVersion      string    `json:"schema_version"`
	SeenIDsAtTimestamp []string  `json:"seen_ids_at_timestamp"`
}

// NewReplayCheckpoint builds a checkpoint from a boundary timestamp and the
// ids observed at it, canonicalizing the timestamp and deduplicating ids
// while preserving first-seen order.
func NewReplayCheckpoint(last time.Time, ids []string) *ReplayCheckpoint {
	return &ReplayCheckpoint{
		LastTimestamp:      ToUTC(last),
		SchemaVersion:      "0.1",
		SeenIDsAtTimestamp: dedupPreserveOrder(ids),
	}
}

func dedupPreserveOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
