/*
Package presence provides the core field-agent presence engine.

PURPOSE:
  This package contains the domain types and algorithms for validating
  GPS checkins against per-agent reference locations, recording presence
  idempotently, and repairing checkin/validation links. The reporting
  layer (package report) builds on these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Agent: identity + reference location + tolerance radius
  - Checkin: an immutable GPS-stamped event submitted by an agent
  - Mission: a bounding span grouping a sequence of checkins
  - ValidationRecord: the computed verdict (distance + within/outside)
    for exactly one checkin
  - PresenceRecord: one row per originating checkin, derived from the
    checkin plus its validation
  - Planification: an agent's planned activity for a calendar date

DESIGN PRINCIPLES:
  1. Immutability: checkins are never mutated after creation; corrections
     happen via new records or conditional relink, never rewrites
  2. Fail-closed: an agent without a configured reference point is never
     marked within tolerance by the automated check
  3. Type Safety: strong typing for IDs prevents mixing agent, checkin
     and mission identifiers

SEE ALSO:
  - evaluate.go: tolerance evaluation
  - recorder.go: idempotent presence recording
  - linker.go: validation creation and orphan repair
  - store.go: persistence contracts
*/
package presence

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID string
type CheckinID string
type MissionID string

// =============================================================================
// AGENT - Identity, role, reference location, tolerance
// =============================================================================

type Role string

const (
	RoleAgent       Role = "agent"
	RoleSuperviseur Role = "superviseur"
	RoleAdmin       Role = "admin"
)

// Agent is the subset of the user record the engine needs.
//
// Invariants:
//   - ToleranceRadiusMeters > 0
//   - ReferenceLat and ReferenceLon are either both set or both nil
//     (no partial reference)
type Agent struct {
	ID                    AgentID
	Name                  string
	Role                  Role
	ReferenceLat          *float64
	ReferenceLon          *float64
	ToleranceRadiusMeters float64
	CreatedAt             time.Time
}

// Reference returns the agent's reference coordinate, or ok=false when no
// complete reference is configured.
func (a Agent) Reference() (lat, lon float64, ok bool) {
	if a.ReferenceLat == nil || a.ReferenceLon == nil {
		return 0, 0, false
	}
	return *a.ReferenceLat, *a.ReferenceLon, true
}

// =============================================================================
// CHECKIN - Immutable GPS-stamped event
// =============================================================================

type CheckinType string

const (
	CheckinStartMission CheckinType = "start_mission"
	CheckinPing         CheckinType = "checkin"
	CheckinEndMission   CheckinType = "end_mission"
)

// Checkin is created by the mobile client at submission time and never
// mutated afterwards. It may be soft-linked to a Mission.
type Checkin struct {
	ID        CheckinID
	AgentID   AgentID
	MissionID *MissionID
	Lat       float64
	Lon       float64
	Timestamp time.Time
	Type      CheckinType
	Note      string
	PhotoURL  string
	CreatedAt time.Time
}

// =============================================================================
// MISSION - Bounding span for a sequence of checkins
// =============================================================================

type MissionStatus string

const (
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionCancelled MissionStatus = "cancelled"
)

// Mission groups one agent's checkins. It is closed explicitly by an
// end_mission checkin, or implicitly by an admin force-end.
type Mission struct {
	ID        MissionID
	AgentID   AgentID
	Label     string
	Status    MissionStatus
	StartedAt time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
}

// =============================================================================
// VALIDATION RECORD - Computed verdict for one checkin
// =============================================================================

// ValidationRecord is derived from exactly one checkin.
//
// Invariant: CheckinID must be non-nil and resolve to an existing checkin.
// A record with a nil or dangling CheckinID is a data-integrity defect,
// observed and repaired by the Linker.
type ValidationRecord struct {
	ID              string
	CheckinID       *CheckinID
	AgentID         AgentID
	DistanceMeters  *float64
	ToleranceMeters float64
	Valid           bool
	Reason          string
	CreatedAt       time.Time
}

// =============================================================================
// PRESENCE RECORD - One row per originating checkin
// =============================================================================

type PresenceStatus string

const (
	PresenceStatusPresent   PresenceStatus = "present"
	PresenceStatusOutOfZone PresenceStatus = "out_of_zone"
)

// PresenceRecord is derived from a checkin plus its validation. The
// checkin is the source of truth for timestamps, coordinates, photo and
// notes; the evaluation is the source of truth for tolerance fields.
//
// Invariant: at most one PresenceRecord per originating checkin, enforced
// by a storage-level uniqueness constraint on CheckinID.
type PresenceRecord struct {
	ID              string
	AgentID         AgentID
	CheckinID       CheckinID
	Date            time.Time // day bucket of the checkin timestamp
	StartTime       time.Time
	EndTime         *time.Time
	Lat             float64
	Lon             float64
	WithinTolerance bool
	DistanceMeters  *float64
	Status          PresenceStatus
	Note            string
	PhotoURL        string
	CreatedAt       time.Time
}

// =============================================================================
// PLANIFICATION - Planned activity for a calendar date
// =============================================================================

// Planification is independent of checkins; the monthly aggregator uses
// it to compute execution rate against what was actually realized.
type Planification struct {
	ID              string
	AgentID         AgentID
	Date            time.Time
	Description     string
	ResultatJournee string // free text; see report.IsRealized
	CreatedAt       time.Time
}
