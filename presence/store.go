/*
store.go - Persistence contracts for the presence engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the engine holds no state of its own.

WRITE DISCIPLINE:
  Checkins, validations, presence records and planifications are created
  once and never rewritten. The only in-place mutations are:
  - LinkValidation: conditional repair of an orphaned validation link
  - CloseMission: active -> completed/cancelled transition
  Both are compare-and-set operations so concurrent submissions are never
  clobbered.

IDEMPOTENCY:
  InsertPresence must be constrained by a storage-level uniqueness
  guarantee on the originating checkin reference and return
  ErrDuplicatePresence on violation. An application-level read-then-write
  is NOT sufficient to close the double-submission race window.

ERROR CONTRACT:
  Infrastructure failures are wrapped with NewStorageError so callers can
  classify them as retryable via IsRetryable. Missing rows surface as the
  package's not-found sentinels, or as (nil, nil) where documented.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (same patterns apply to PostgreSQL)
  - presence/store: in-memory, for tests and development
*/
package presence

import (
	"context"
	"time"
)

// Store aggregates every persistence contract the engine needs.
type Store interface {
	AgentStore
	CheckinStore
	MissionStore
	ValidationStore
	PresenceStore
	PlanificationStore
}

// =============================================================================
// AGENTS
// =============================================================================

type AgentStore interface {
	// SaveAgent inserts or replaces an agent record.
	SaveAgent(ctx context.Context, a Agent) error

	// GetAgent returns the agent or ErrAgentNotFound.
	GetAgent(ctx context.Context, id AgentID) (*Agent, error)

	ListAgents(ctx context.Context) ([]Agent, error)

	// UpdateAgentReference sets the reference point and tolerance radius.
	// Callers must have validated the both-or-neither invariant and
	// tolerance > 0 before reaching the store.
	UpdateAgentReference(ctx context.Context, id AgentID, refLat, refLon *float64, toleranceMeters float64) error
}

// =============================================================================
// CHECKINS (append-only)
// =============================================================================

type CheckinStore interface {
	// SaveCheckin persists a new checkin. Checkins are immutable; there is
	// no update or delete.
	SaveCheckin(ctx context.Context, c Checkin) error

	// GetCheckin returns the checkin or ErrCheckinNotFound.
	GetCheckin(ctx context.Context, id CheckinID) (*Checkin, error)

	// ListCheckins returns the agent's checkins with Timestamp in
	// [from, to], ordered by Timestamp ascending.
	ListCheckins(ctx context.Context, agentID AgentID, from, to time.Time) ([]Checkin, error)
}

// =============================================================================
// MISSIONS
// =============================================================================

type MissionStore interface {
	SaveMission(ctx context.Context, m Mission) error

	// GetMission returns the mission or ErrMissionNotFound.
	GetMission(ctx context.Context, id MissionID) (*Mission, error)

	// CloseMission transitions an active mission to the given terminal
	// status. Returns ErrMissionClosed if the mission is not active.
	CloseMission(ctx context.Context, id MissionID, status MissionStatus, endedAt time.Time) error

	// ListMissions returns the agent's missions overlapping [from, to]
	// (started before to, and not ended before from), ordered by StartedAt.
	ListMissions(ctx context.Context, agentID AgentID, from, to time.Time) ([]Mission, error)
}

// =============================================================================
// VALIDATIONS
// =============================================================================

type ValidationStore interface {
	SaveValidation(ctx context.Context, v ValidationRecord) error

	// ListValidations returns the agent's validations created in [from, to].
	ListValidations(ctx context.Context, agentID AgentID, from, to time.Time) ([]ValidationRecord, error)

	// ListOrphanValidations returns validations whose CheckinID is nil or
	// does not resolve to an existing checkin, oldest first.
	ListOrphanValidations(ctx context.Context, limit int) ([]ValidationRecord, error)

	// LinkValidation sets the validation's CheckinID to newID, but only if
	// the current value still equals expectCurrent (nil for a null link).
	// Returns false when the record was concurrently linked by someone
	// else; that is not an error.
	LinkValidation(ctx context.Context, validationID string, expectCurrent *CheckinID, newID CheckinID) (bool, error)
}

// =============================================================================
// PRESENCE RECORDS
// =============================================================================

type PresenceStore interface {
	// InsertPresence persists a presence record. Returns
	// ErrDuplicatePresence when a record for the same originating checkin
	// already exists (uniqueness constraint, not a read-then-write).
	InsertPresence(ctx context.Context, p PresenceRecord) error

	// GetPresenceByCheckin returns the presence record derived from the
	// checkin, or (nil, nil) when none exists.
	GetPresenceByCheckin(ctx context.Context, checkinID CheckinID) (*PresenceRecord, error)

	// ListPresence returns the agent's presence records with Date in
	// [from, to], ordered by StartTime ascending.
	ListPresence(ctx context.Context, agentID AgentID, from, to time.Time) ([]PresenceRecord, error)
}

// =============================================================================
// PLANIFICATIONS
// =============================================================================

type PlanificationStore interface {
	SavePlanification(ctx context.Context, p Planification) error

	// ListPlanifications returns the agent's planifications with Date in
	// [from, to], ordered by Date ascending.
	ListPlanifications(ctx context.Context, agentID AgentID, from, to time.Time) ([]Planification, error)
}
