package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/presence/store"
	"github.com/ccrb/presence-engine/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const agentID = presence.AgentID("agent-1")

func ping(id string, at time.Time) presence.Checkin {
	return presence.Checkin{
		ID:        presence.CheckinID(id),
		AgentID:   agentID,
		Lat:       6.3703,
		Lon:       2.3912,
		Timestamp: at,
		Type:      presence.CheckinPing,
	}
}

func missionPing(id string, missionID presence.MissionID, at time.Time) presence.Checkin {
	c := ping(id, at)
	c.MissionID = &missionID
	return c
}

func plan(id string, date time.Time, outcome string) presence.Planification {
	return presence.Planification{
		ID:              id,
		AgentID:         agentID,
		Date:            date,
		ResultatJournee: outcome,
	}
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return time.Date(2025, 3, d, h, m, 0, 0, time.UTC)
}

func assertRate(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		"want %s, got %s", want, got.String())
}

// =============================================================================
// EMPTY MONTH - zero-division safety
// =============================================================================

func TestBuildMonthlyReport_EmptyMonth_AllZeros(t *testing.T) {
	mem := store.NewMemory()
	ag := report.NewAggregator(mem, time.UTC)

	r, err := ag.BuildMonthlyReport(context.Background(), agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 0, r.TotalCheckins)
	assert.Equal(t, 0, r.WorkedDays)
	assert.Equal(t, 0, r.WorkingDays)
	assertRate(t, "0", r.PresenceRate)
	assertRate(t, "0", r.FieldTimeHours)
	assertRate(t, "0", r.ExecutionRate)
}

func TestBuildMonthlyReport_InvalidYearMonth(t *testing.T) {
	mem := store.NewMemory()
	ag := report.NewAggregator(mem, time.UTC)

	_, err := ag.BuildMonthlyReport(context.Background(), agentID, "March 2025")
	assert.Error(t, err)
}

// =============================================================================
// WORKED DAYS AND PRESENCE RATE
// =============================================================================

func TestBuildMonthlyReport_WorkedDays_DistinctDates(t *testing.T) {
	// GIVEN: Five checkins across three distinct days
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-1", at(3, 8, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-2", at(3, 12, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-3", at(4, 9, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-4", at(10, 9, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-5", at(10, 17, 0))))

	// AND: Four planned working days
	require.NoError(t, mem.SavePlanification(ctx, plan("p-1", day(3), "")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-2", day(4), "")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-3", day(10), "")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-4", day(11), "")))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 5, r.TotalCheckins)
	assert.Equal(t, 3, r.WorkedDays)
	assert.Equal(t, 4, r.WorkingDays)
	assertRate(t, "0.75", r.PresenceRate)
}

func TestBuildMonthlyReport_IgnoresOtherMonths(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-feb", time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-mar", at(1, 9, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-apr", time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 1, r.TotalCheckins)
	assert.Equal(t, 1, r.WorkedDays)
}

// =============================================================================
// EXECUTION RATE - text heuristic, warts included
// =============================================================================

func TestBuildMonthlyReport_ExecutionRate(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SavePlanification(ctx, plan("p-1", day(3), "Réalisé")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-2", day(4), "fait en partie")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-3", day(5), "reporté")))
	require.NoError(t, mem.SavePlanification(ctx, plan("p-4", day(6), "")))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	// 2 of 4 planifications match the realized heuristic.
	assertRate(t, "0.5", r.ExecutionRate)
}

func TestIsRealized(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Réalisé", true},
		{"réalisée", true},
		{"REALISE", true},
		{"fait", true},
		{"Travail effectué", true},
		{"terminé", true},
		{"reporté", false},
		{"en cours", false},
		{"", false},
		{"   ", false},
		// Historical wart: negations still match the substring.
		{"non réalisé", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, report.IsRealized(tc.text), "text=%q", tc.text)
	}
}

// =============================================================================
// FIELD TIME - per-mission first-to-last checkin span
// =============================================================================

func TestBuildMonthlyReport_FieldTime_SingleMission(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	mid := presence.MissionID("m-1")
	require.NoError(t, mem.SaveMission(ctx, presence.Mission{
		ID: mid, AgentID: agentID, Status: presence.MissionCompleted,
		StartedAt: at(3, 8, 0), EndedAt: tp(at(3, 16, 30)),
	}))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-1", mid, at(3, 8, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-2", mid, at(3, 12, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-3", mid, at(3, 16, 30))))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Missions)
	assertRate(t, "8.5", r.FieldTimeHours)
}

func TestBuildMonthlyReport_FieldTime_SumsMissions(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	m1, m2 := presence.MissionID("m-1"), presence.MissionID("m-2")
	require.NoError(t, mem.SaveMission(ctx, presence.Mission{
		ID: m1, AgentID: agentID, Status: presence.MissionCompleted,
		StartedAt: at(3, 8, 0), EndedAt: tp(at(3, 12, 0)),
	}))
	require.NoError(t, mem.SaveMission(ctx, presence.Mission{
		ID: m2, AgentID: agentID, Status: presence.MissionCompleted,
		StartedAt: at(10, 9, 0), EndedAt: tp(at(10, 11, 0)),
	}))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-1", m1, at(3, 8, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-2", m1, at(3, 12, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-3", m2, at(10, 9, 0))))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-4", m2, at(10, 11, 0))))
	// Off-mission ping must not contribute to field time.
	require.NoError(t, mem.SaveCheckin(ctx, ping("c-5", at(11, 9, 0))))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Missions)
	assertRate(t, "6", r.FieldTimeHours)
}

func TestBuildMonthlyReport_FieldTime_MissionSpanningMonthBoundary(t *testing.T) {
	// A mission that starts in February and ends in March contributes its
	// FULL first-to-last span to the March report.
	mem := store.NewMemory()
	ctx := context.Background()

	mid := presence.MissionID("m-cross")
	started := time.Date(2025, 2, 28, 22, 0, 0, 0, time.UTC)
	ended := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SaveMission(ctx, presence.Mission{
		ID: mid, AgentID: agentID, Status: presence.MissionCompleted,
		StartedAt: started, EndedAt: &ended,
	}))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-1", mid, started)))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-2", mid, ended)))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Missions)
	assertRate(t, "4", r.FieldTimeHours)
}

func TestBuildMonthlyReport_FieldTime_MissionWithSingleCheckin_ZeroSpan(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	mid := presence.MissionID("m-1")
	require.NoError(t, mem.SaveMission(ctx, presence.Mission{
		ID: mid, AgentID: agentID, Status: presence.MissionActive, StartedAt: at(3, 8, 0),
	}))
	require.NoError(t, mem.SaveCheckin(ctx, missionPing("c-1", mid, at(3, 8, 0))))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assertRate(t, "0", r.FieldTimeHours)
}

// =============================================================================
// TOLERANCE COUNTS
// =============================================================================

func TestBuildMonthlyReport_ToleranceCounts(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	cid := presence.CheckinID("c-1")
	require.NoError(t, mem.SaveValidation(ctx, presence.ValidationRecord{
		ID: "v-1", AgentID: agentID, CheckinID: &cid, Valid: true,
		Reason: presence.ReasonWithinTolerance, CreatedAt: at(3, 9, 0),
	}))
	require.NoError(t, mem.SaveValidation(ctx, presence.ValidationRecord{
		ID: "v-2", AgentID: agentID, CheckinID: &cid, Valid: false,
		Reason: presence.ReasonOutsideTolerance, CreatedAt: at(4, 9, 0),
	}))
	require.NoError(t, mem.SaveValidation(ctx, presence.ValidationRecord{
		ID: "v-3", AgentID: agentID, CheckinID: &cid, Valid: false,
		Reason: presence.ReasonMissingReference, CreatedAt: at(5, 9, 0),
	}))

	ag := report.NewAggregator(mem, time.UTC)
	r, err := ag.BuildMonthlyReport(ctx, agentID, "2025-03")
	require.NoError(t, err)

	assert.Equal(t, 1, r.WithinTolerance)
	assert.Equal(t, 2, r.OutsideTolerance)
}

func tp(t time.Time) *time.Time { return &t }
