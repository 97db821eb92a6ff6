/*
Package sqlite provides a SQLite-backed implementation of the presence
storage interfaces.

PURPOSE:
  Implements presence.Store using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  agents:           identity, reference point, tolerance radius
  checkins:         immutable GPS events (append-only)
  missions:         bounding spans grouping checkins
  validations:      per-checkin tolerance verdicts
  presence_records: one row per originating checkin
  planifications:   planned activity per agent per date

IDEMPOTENCY:
  The uniqueness invariant "at most one presence record per originating
  checkin" is enforced by a UNIQUE index on presence_records.checkin_id,
  not by an application-level read-then-write. A violated insert maps to
  presence.ErrDuplicatePresence, which the recorder recovers from.

WRITE DISCIPLINE:
  - No UPDATE or DELETE on checkins or presence_records
  - validations are updated only by the conditional relink (checkin_id
    compare-and-set)
  - missions transition active -> completed/cancelled once

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/presence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - presence/store.go: interface definitions and contracts
  - presence/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ccrb/presence-engine/presence"
)

// timeFormat is the canonical storage format. Everything is stored UTC
// so lexicographic comparison in SQL matches chronological order.
const timeFormat = time.RFC3339

// Store implements presence.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'agent',
		reference_lat REAL,
		reference_lon REAL,
		tolerance_radius_m REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Checkins (append-only, never mutated)
	CREATE TABLE IF NOT EXISTS checkins (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		mission_id TEXT,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkins_agent_timestamp
		ON checkins(agent_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_checkins_mission
		ON checkins(mission_id) WHERE mission_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_missions_agent_started
		ON missions(agent_id, started_at);

	CREATE TABLE IF NOT EXISTS validations (
		id TEXT PRIMARY KEY,
		checkin_id TEXT,
		agent_id TEXT NOT NULL,
		distance_m REAL,
		tolerance_m REAL NOT NULL,
		valid INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_validations_agent_created
		ON validations(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_validations_checkin
		ON validations(checkin_id) WHERE checkin_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS presence_records (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		checkin_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		within_tolerance INTEGER NOT NULL,
		distance_m REAL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one presence record per originating checkin.
	-- This closes the double-submission race; see presence/recorder.go.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_presence_unique_checkin
		ON presence_records(checkin_id);

	CREATE INDEX IF NOT EXISTS idx_presence_agent_date
		ON presence_records(agent_id, date);

	CREATE TABLE IF NOT EXISTS planifications (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		resultat_journee TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_planifications_agent_date
		ON planifications(agent_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeFormat, s) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// =============================================================================
// AGENTS
// =============================================================================

func (s *Store) SaveAgent(ctx context.Context, a presence.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agents (id, name, role, reference_lat, reference_lon, tolerance_radius_m, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.Name, string(a.Role), a.ReferenceLat, a.ReferenceLon,
		a.ToleranceRadiusMeters, fmtTime(a.CreatedAt))
	if err != nil {
		return presence.NewStorageError("SaveAgent", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id presence.AgentID) (*presence.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, reference_lat, reference_lon, tolerance_radius_m, created_at
		FROM agents WHERE id = ?`, string(id))

	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, presence.ErrAgentNotFound
	}
	if err != nil {
		return nil, presence.NewStorageError("GetAgent", err)
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]presence.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, reference_lat, reference_lon, tolerance_radius_m, created_at
		FROM agents ORDER BY id`)
	if err != nil {
		return nil, presence.NewStorageError("ListAgents", err)
	}
	defer rows.Close()

	var out []presence.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, presence.NewStorageError("ListAgents", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAgentReference(ctx context.Context, id presence.AgentID, refLat, refLon *float64, toleranceMeters float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET reference_lat = ?, reference_lon = ?, tolerance_radius_m = ?
		WHERE id = ?`,
		refLat, refLon, toleranceMeters, string(id))
	if err != nil {
		return presence.NewStorageError("UpdateAgentReference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return presence.NewStorageError("UpdateAgentReference", err)
	}
	if n == 0 {
		return presence.ErrAgentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(r rowScanner) (*presence.Agent, error) {
	var a presence.Agent
	var role, createdAt string
	var refLat, refLon sql.NullFloat64

	if err := r.Scan(&a.ID, &a.Name, &role, &refLat, &refLon, &a.ToleranceRadiusMeters, &createdAt); err != nil {
		return nil, err
	}
	a.Role = presence.Role(role)
	if refLat.Valid {
		a.ReferenceLat = &refLat.Float64
	}
	if refLon.Valid {
		a.ReferenceLon = &refLon.Float64
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = t
	return &a, nil
}

// =============================================================================
// CHECKINS
// =============================================================================

func (s *Store) SaveCheckin(ctx context.Context, c presence.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missionID any
	if c.MissionID != nil {
		missionID = string(*c.MissionID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkins (id, agent_id, mission_id, lat, lon, timestamp, type, note, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.AgentID), missionID, c.Lat, c.Lon,
		fmtTime(c.Timestamp), string(c.Type), c.Note, c.PhotoURL, fmtTime(c.CreatedAt))
	if err != nil {
		return presence.NewStorageError("SaveCheckin", err)
	}
	return nil
}

func (s *Store) GetCheckin(ctx context.Context, id presence.CheckinID) (*presence.Checkin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, mission_id, lat, lon, timestamp, type, note, photo_url, created_at
		FROM checkins WHERE id = ?`, string(id))

	c, err := scanCheckin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, presence.ErrCheckinNotFound
	}
	if err != nil {
		return nil, presence.NewStorageError("GetCheckin", err)
	}
	return c, nil
}

func (s *Store) ListCheckins(ctx context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Checkin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, mission_id, lat, lon, timestamp, type, note, photo_url, created_at
		FROM checkins
		WHERE agent_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp, id`,
		string(agentID), fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, presence.NewStorageError("ListCheckins", err)
	}
	defer rows.Close()

	var out []presence.Checkin
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, presence.NewStorageError("ListCheckins", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCheckin(r rowScanner) (*presence.Checkin, error) {
	var c presence.Checkin
	var missionID sql.NullString
	var typ, timestamp, createdAt string

	if err := r.Scan(&c.ID, &c.AgentID, &missionID, &c.Lat, &c.Lon, &timestamp, &typ, &c.Note, &c.PhotoURL, &createdAt); err != nil {
		return nil, err
	}
	if missionID.Valid {
		mid := presence.MissionID(missionID.String)
		c.MissionID = &mid
	}
	c.Type = presence.CheckinType(typ)

	var err error
	if c.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// MISSIONS
// =============================================================================

func (s *Store) SaveMission(ctx context.Context, m presence.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO missions (id, agent_id, label, status, started_at, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.AgentID), m.Label, string(m.Status),
		fmtTime(m.StartedAt), fmtTimePtr(m.EndedAt), fmtTime(m.CreatedAt))
	if err != nil {
		return presence.NewStorageError("SaveMission", err)
	}
	return nil
}

func (s *Store) GetMission(ctx context.Context, id presence.MissionID) (*presence.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, label, status, started_at, ended_at, created_at
		FROM missions WHERE id = ?`, string(id))

	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, presence.ErrMissionNotFound
	}
	if err != nil {
		return nil, presence.NewStorageError("GetMission", err)
	}
	return m, nil
}

func (s *Store) CloseMission(ctx context.Context, id presence.MissionID, status presence.MissionStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Conditional transition: only an active mission closes. A second
	// close attempt misses the WHERE and is reported, not applied.
	res, err := s.db.ExecContext(ctx, `
		UPDATE missions SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?`,
		string(status), fmtTime(endedAt), string(id), string(presence.MissionActive))
	if err != nil {
		return presence.NewStorageError("CloseMission", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return presence.NewStorageError("CloseMission", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM missions WHERE id = ?`, string(id)).Scan(&exists)
	if err != nil {
		return presence.NewStorageError("CloseMission", err)
	}
	if exists == 0 {
		return presence.ErrMissionNotFound
	}
	return presence.ErrMissionClosed
}

func (s *Store) ListMissions(ctx context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, label, status, started_at, ended_at, created_at
		FROM missions
		WHERE agent_id = ? AND started_at <= ? AND (ended_at IS NULL OR ended_at >= ?)
		ORDER BY started_at, id`,
		string(agentID), fmtTime(to), fmtTime(from))
	if err != nil {
		return nil, presence.NewStorageError("ListMissions", err)
	}
	defer rows.Close()

	var out []presence.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, presence.NewStorageError("ListMissions", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMission(r rowScanner) (*presence.Mission, error) {
	var m presence.Mission
	var status, startedAt, createdAt string
	var endedAt sql.NullString

	if err := r.Scan(&m.ID, &m.AgentID, &m.Label, &status, &startedAt, &endedAt, &createdAt); err != nil {
		return nil, err
	}
	m.Status = presence.MissionStatus(status)

	var err error
	if m.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		m.EndedAt = &t
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// VALIDATIONS
// =============================================================================

func (s *Store) SaveValidation(ctx context.Context, v presence.ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var checkinID any
	if v.CheckinID != nil {
		checkinID = string(*v.CheckinID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (id, checkin_id, agent_id, distance_m, tolerance_m, valid, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, checkinID, string(v.AgentID), v.DistanceMeters, v.ToleranceMeters,
		boolToInt(v.Valid), v.Reason, fmtTime(v.CreatedAt))
	if err != nil {
		return presence.NewStorageError("SaveValidation", err)
	}
	return nil
}

func (s *Store) ListValidations(ctx context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, checkin_id, agent_id, distance_m, tolerance_m, valid, reason, created_at
		FROM validations
		WHERE agent_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at, id`,
		string(agentID), fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, presence.NewStorageError("ListValidations", err)
	}
	defer rows.Close()

	return collectValidations(rows)
}

func (s *Store) ListOrphanValidations(ctx context.Context, limit int) ([]presence.ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Orphan: null link, or a link pointing at a checkin that does not
	// resolve (historical data-integrity defects).
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.checkin_id, v.agent_id, v.distance_m, v.tolerance_m, v.valid, v.reason, v.created_at
		FROM validations v
		LEFT JOIN checkins c ON v.checkin_id = c.id
		WHERE v.checkin_id IS NULL OR c.id IS NULL
		ORDER BY v.created_at, v.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, presence.NewStorageError("ListOrphanValidations", err)
	}
	defer rows.Close()

	return collectValidations(rows)
}

func (s *Store) LinkValidation(ctx context.Context, validationID string, expectCurrent *presence.CheckinID, newID presence.CheckinID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expect any
	if expectCurrent != nil {
		expect = string(*expectCurrent)
	}

	// Compare-and-set: IS matches NULL, so a freshly linked validation
	// is never blindly overwritten.
	res, err := s.db.ExecContext(ctx, `
		UPDATE validations SET checkin_id = ?
		WHERE id = ? AND checkin_id IS ?`,
		string(newID), validationID, expect)
	if err != nil {
		return false, presence.NewStorageError("LinkValidation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, presence.NewStorageError("LinkValidation", err)
	}
	return n == 1, nil
}

func collectValidations(rows *sql.Rows) ([]presence.ValidationRecord, error) {
	var out []presence.ValidationRecord
	for rows.Next() {
		var v presence.ValidationRecord
		var checkinID sql.NullString
		var distance sql.NullFloat64
		var valid int
		var createdAt string

		if err := rows.Scan(&v.ID, &checkinID, &v.AgentID, &distance, &v.ToleranceMeters, &valid, &v.Reason, &createdAt); err != nil {
			return nil, presence.NewStorageError("scanValidation", err)
		}
		if checkinID.Valid {
			cid := presence.CheckinID(checkinID.String)
			v.CheckinID = &cid
		}
		if distance.Valid {
			v.DistanceMeters = &distance.Float64
		}
		v.Valid = valid != 0

		t, err := parseTime(createdAt)
		if err != nil {
			return nil, presence.NewStorageError("scanValidation", err)
		}
		v.CreatedAt = t
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// PRESENCE RECORDS
// =============================================================================

func (s *Store) InsertPresence(ctx context.Context, p presence.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence_records (id, agent_id, checkin_id, date, start_time, end_time, lat, lon,
			within_tolerance, distance_m, status, note, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.AgentID), string(p.CheckinID), fmtTime(p.Date), fmtTime(p.StartTime),
		fmtTimePtr(p.EndTime), p.Lat, p.Lon, boolToInt(p.WithinTolerance), p.DistanceMeters,
		string(p.Status), p.Note, p.PhotoURL, fmtTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return &presence.DuplicatePresenceError{
				AgentID:   p.AgentID,
				CheckinID: p.CheckinID,
				At:        p.StartTime,
			}
		}
		return presence.NewStorageError("InsertPresence", err)
	}
	return nil
}

func (s *Store) GetPresenceByCheckin(ctx context.Context, checkinID presence.CheckinID) (*presence.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, checkin_id, date, start_time, end_time, lat, lon,
			within_tolerance, distance_m, status, note, photo_url, created_at
		FROM presence_records WHERE checkin_id = ?`, string(checkinID))

	p, err := scanPresence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, presence.NewStorageError("GetPresenceByCheckin", err)
	}
	return p, nil
}

func (s *Store) ListPresence(ctx context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, checkin_id, date, start_time, end_time, lat, lon,
			within_tolerance, distance_m, status, note, photo_url, created_at
		FROM presence_records
		WHERE agent_id = ? AND date >= ? AND date <= ?
		ORDER BY start_time, id`,
		string(agentID), fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, presence.NewStorageError("ListPresence", err)
	}
	defer rows.Close()

	var out []presence.PresenceRecord
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, presence.NewStorageError("ListPresence", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPresence(r rowScanner) (*presence.PresenceRecord, error) {
	var p presence.PresenceRecord
	var date, startTime, status, createdAt string
	var endTime sql.NullString
	var within int
	var distance sql.NullFloat64

	if err := r.Scan(&p.ID, &p.AgentID, &p.CheckinID, &date, &startTime, &endTime,
		&p.Lat, &p.Lon, &within, &distance, &status, &p.Note, &p.PhotoURL, &createdAt); err != nil {
		return nil, err
	}
	p.WithinTolerance = within != 0
	p.Status = presence.PresenceStatus(status)
	if distance.Valid {
		p.DistanceMeters = &distance.Float64
	}

	var err error
	if p.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if p.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		p.EndTime = &t
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// PLANIFICATIONS
// =============================================================================

func (s *Store) SavePlanification(ctx context.Context, p presence.Planification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO planifications (id, agent_id, date, description, resultat_journee, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.AgentID), fmtTime(p.Date), p.Description, p.ResultatJournee, fmtTime(p.CreatedAt))
	if err != nil {
		return presence.NewStorageError("SavePlanification", err)
	}
	return nil
}

func (s *Store) ListPlanifications(ctx context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Planification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, date, description, resultat_journee, created_at
		FROM planifications
		WHERE agent_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`,
		string(agentID), fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, presence.NewStorageError("ListPlanifications", err)
	}
	defer rows.Close()

	var out []presence.Planification
	for rows.Next() {
		var p presence.Planification
		var date, createdAt string
		if err := rows.Scan(&p.ID, &p.AgentID, &date, &p.Description, &p.ResultatJournee, &createdAt); err != nil {
			return nil, presence.NewStorageError("ListPlanifications", err)
		}
		if p.Date, err = parseTime(date); err != nil {
			return nil, presence.NewStorageError("ListPlanifications", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, presence.NewStorageError("ListPlanifications", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
