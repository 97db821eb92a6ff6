package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/presence/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAgent() presence.Agent {
	return presence.Agent{
		ID:                    "agent-1",
		Name:                  "Test Agent",
		Role:                  presence.RoleAgent,
		ReferenceLat:          fp(6.3703),
		ReferenceLon:          fp(2.3912),
		ToleranceRadiusMeters: 100,
	}
}

func newTestCheckin(id string, at time.Time) presence.Checkin {
	return presence.Checkin{
		ID:        presence.CheckinID(id),
		AgentID:   "agent-1",
		Lat:       6.3703,
		Lon:       2.3912,
		Timestamp: at,
		Type:      presence.CheckinPing,
	}
}

// =============================================================================
// RECORDING
// =============================================================================

func TestRecordPresence_WithinTolerance_CreatesPresentRecord(t *testing.T) {
	mem := store.NewMemory()
	rec := presence.NewRecorder(mem, time.UTC)
	ctx := context.Background()
	agent := newTestAgent()

	at := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	c := newTestCheckin("c-1", at)
	require.NoError(t, mem.SaveCheckin(ctx, c))

	record, ev, err := rec.RecordPresence(ctx, c, agent)
	require.NoError(t, err)

	assert.True(t, ev.WithinTolerance)
	assert.Equal(t, presence.PresenceStatusPresent, record.Status)
	assert.Equal(t, c.ID, record.CheckinID)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), record.Date)
	assert.Equal(t, at, record.StartTime)

	// The validation was created linked to the checkin.
	vals, err := mem.ListValidations(ctx, agent.ID, at.Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.NotNil(t, vals[0].CheckinID)
	assert.Equal(t, c.ID, *vals[0].CheckinID)
	assert.True(t, vals[0].Valid)
}

func TestRecordPresence_MissingReference_RecordsOutOfZone(t *testing.T) {
	// GIVEN: An agent with no reference point configured
	mem := store.NewMemory()
	rec := presence.NewRecorder(mem, time.UTC)
	ctx := context.Background()
	agent := newTestAgent()
	agent.ReferenceLat = nil
	agent.ReferenceLon = nil

	c := newTestCheckin("c-1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	// WHEN: The checkin is recorded
	record, ev, err := rec.RecordPresence(ctx, c, agent)
	require.NoError(t, err)

	// THEN: The pipeline completes with a fail-closed verdict, not an error
	assert.False(t, ev.WithinTolerance)
	assert.Equal(t, presence.ReasonMissingReference, ev.Reason)
	assert.Equal(t, presence.PresenceStatusOutOfZone, record.Status)
	assert.Nil(t, record.DistanceMeters)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestRecordPresence_Resubmission_ReturnsExistingRecord(t *testing.T) {
	mem := store.NewMemory()
	rec := presence.NewRecorder(mem, time.UTC)
	ctx := context.Background()
	agent := newTestAgent()

	c := newTestCheckin("c-1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, mem.SaveCheckin(ctx, c))

	first, _, err := rec.RecordPresence(ctx, c, agent)
	require.NoError(t, err)

	// Client retry after a timeout: same checkin, second call.
	second, _, err := rec.RecordPresence(ctx, c, agent)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	// Exactly one presence record and one validation exist.
	records, err := mem.ListPresence(ctx, agent.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	vals, err := mem.ListValidations(ctx, agent.ID,
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, vals, 1)
}

func TestRecordPresence_DuplicateInsert_RecoversWinner(t *testing.T) {
	// GIVEN: A presence record already exists for the checkin but was
	// inserted behind the recorder's back (simulates losing the race to a
	// concurrent submission between the fast-path read and the insert).
	mem := store.NewMemory()
	rec := presence.NewRecorder(mem, time.UTC)
	ctx := context.Background()
	agent := newTestAgent()

	c := newTestCheckin("c-1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	winner := presence.PresenceRecord{
		ID:        "pr-winner",
		AgentID:   agent.ID,
		CheckinID: c.ID,
		Date:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime: c.Timestamp,
		Status:    presence.PresenceStatusPresent,
	}

	// The store rejects the duplicate; the recorder must treat the
	// conflict as success and return the winning row.
	require.NoError(t, mem.InsertPresence(ctx, winner))
	err := mem.InsertPresence(ctx, presence.PresenceRecord{
		ID: "pr-loser", AgentID: agent.ID, CheckinID: c.ID,
	})
	require.ErrorIs(t, err, presence.ErrDuplicatePresence)

	record, _, err := rec.RecordPresence(ctx, c, agent)
	require.NoError(t, err)
	assert.Equal(t, "pr-winner", record.ID)
}
