// Package store provides an in-memory presence.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ccrb/presence-engine/presence"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu              sync.RWMutex
	agents          map[presence.AgentID]presence.Agent
	checkins        map[presence.CheckinID]presence.Checkin
	missions        map[presence.MissionID]presence.Mission
	validations     map[string]presence.ValidationRecord
	planifications  map[string]presence.Planification
	presenceByID    map[string]presence.PresenceRecord
	presenceByCheck map[presence.CheckinID]string // checkin -> presence ID, the uniqueness constraint
}

func NewMemory() *Memory {
	return &Memory{
		agents:          make(map[presence.AgentID]presence.Agent),
		checkins:        make(map[presence.CheckinID]presence.Checkin),
		missions:        make(map[presence.MissionID]presence.Mission),
		validations:     make(map[string]presence.ValidationRecord),
		planifications:  make(map[string]presence.Planification),
		presenceByID:    make(map[string]presence.PresenceRecord),
		presenceByCheck: make(map[presence.CheckinID]string),
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func (m *Memory) SaveAgent(_ context.Context, a presence.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
	return nil
}

func (m *Memory) GetAgent(_ context.Context, id presence.AgentID) (*presence.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, presence.ErrAgentNotFound
	}
	return &a, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]presence.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]presence.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateAgentReference(_ context.Context, id presence.AgentID, refLat, refLon *float64, toleranceMeters float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return presence.ErrAgentNotFound
	}
	a.ReferenceLat = refLat
	a.ReferenceLon = refLon
	a.ToleranceRadiusMeters = toleranceMeters
	m.agents[id] = a
	return nil
}

// =============================================================================
// CHECKINS
// =============================================================================

func (m *Memory) SaveCheckin(_ context.Context, c presence.Checkin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkins[c.ID] = c
	return nil
}

func (m *Memory) GetCheckin(_ context.Context, id presence.CheckinID) (*presence.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, presence.ErrCheckinNotFound
	}
	return &c, nil
}

func (m *Memory) ListCheckins(_ context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.Checkin
	for _, c := range m.checkins {
		if c.AgentID == agentID && inRange(c.Timestamp, from, to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// =============================================================================
// MISSIONS
// =============================================================================

func (m *Memory) SaveMission(_ context.Context, mi presence.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missions[mi.ID] = mi
	return nil
}

func (m *Memory) GetMission(_ context.Context, id presence.MissionID) (*presence.Mission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mi, ok := m.missions[id]
	if !ok {
		return nil, presence.ErrMissionNotFound
	}
	return &mi, nil
}

func (m *Memory) CloseMission(_ context.Context, id presence.MissionID, status presence.MissionStatus, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, ok := m.missions[id]
	if !ok {
		return presence.ErrMissionNotFound
	}
	if mi.Status != presence.MissionActive {
		return presence.ErrMissionClosed
	}
	mi.Status = status
	mi.EndedAt = &endedAt
	m.missions[id] = mi
	return nil
}

func (m *Memory) ListMissions(_ context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Mission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.Mission
	for _, mi := range m.missions {
		if mi.AgentID != agentID {
			continue
		}
		// Overlap: started before the range end, not ended before the start.
		if mi.StartedAt.After(to) {
			continue
		}
		if mi.EndedAt != nil && mi.EndedAt.Before(from) {
			continue
		}
		out = append(out, mi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// =============================================================================
// VALIDATIONS
// =============================================================================

func (m *Memory) SaveValidation(_ context.Context, v presence.ValidationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations[v.ID] = v
	return nil
}

func (m *Memory) ListValidations(_ context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.ValidationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.ValidationRecord
	for _, v := range m.validations {
		if v.AgentID == agentID && inRange(v.CreatedAt, from, to) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListOrphanValidations(_ context.Context, limit int) ([]presence.ValidationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.ValidationRecord
	for _, v := range m.validations {
		if m.isOrphanLocked(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) isOrphanLocked(v presence.ValidationRecord) bool {
	if v.CheckinID == nil {
		return true
	}
	_, ok := m.checkins[*v.CheckinID]
	return !ok // dangling link
}

func (m *Memory) LinkValidation(_ context.Context, validationID string, expectCurrent *presence.CheckinID, newID presence.CheckinID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validations[validationID]
	if !ok {
		return false, nil
	}
	if !sameLink(v.CheckinID, expectCurrent) {
		return false, nil // concurrently linked, leave it alone
	}
	v.CheckinID = &newID
	m.validations[validationID] = v
	return true, nil
}

func sameLink(a, b *presence.CheckinID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// =============================================================================
// PRESENCE RECORDS
// =============================================================================

func (m *Memory) InsertPresence(_ context.Context, p presence.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.presenceByCheck[p.CheckinID]; exists {
		return &presence.DuplicatePresenceError{
			AgentID:   p.AgentID,
			CheckinID: p.CheckinID,
			At:        p.StartTime,
		}
	}
	m.presenceByID[p.ID] = p
	m.presenceByCheck[p.CheckinID] = p.ID
	return nil
}

func (m *Memory) GetPresenceByCheckin(_ context.Context, checkinID presence.CheckinID) (*presence.PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.presenceByCheck[checkinID]
	if !ok {
		return nil, nil
	}
	p := m.presenceByID[id]
	return &p, nil
}

func (m *Memory) ListPresence(_ context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.PresenceRecord
	for _, p := range m.presenceByID {
		if p.AgentID == agentID && inRange(p.Date, from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// =============================================================================
// PLANIFICATIONS
// =============================================================================

func (m *Memory) SavePlanification(_ context.Context, p presence.Planification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planifications[p.ID] = p
	return nil
}

func (m *Memory) ListPlanifications(_ context.Context, agentID presence.AgentID, from, to time.Time) ([]presence.Planification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []presence.Planification
	for _, p := range m.planifications {
		if p.AgentID == agentID && inRange(p.Date, from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
