package presence_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrb/presence-engine/presence"
)

func fp(v float64) *float64 { return &v }

// =============================================================================
// FAIL-CLOSED CONDITIONS
// =============================================================================

func TestEvaluate_MissingReference_FailsClosed(t *testing.T) {
	// GIVEN: No reference point is configured
	// WHEN: A perfectly good coordinate is evaluated
	ev := presence.Evaluate(6.3703, 2.3912, nil, nil, 100)

	// THEN: Never within tolerance, no distance, explicit reason
	assert.False(t, ev.WithinTolerance)
	assert.Nil(t, ev.DistanceMeters)
	assert.Equal(t, presence.ReasonMissingReference, ev.Reason)
}

func TestEvaluate_PartialReference_FailsClosed(t *testing.T) {
	ev := presence.Evaluate(6.3703, 2.3912, fp(6.3703), nil, 100)

	assert.False(t, ev.WithinTolerance)
	assert.Nil(t, ev.DistanceMeters)
	assert.Equal(t, presence.ReasonMissingReference, ev.Reason)
}

func TestEvaluate_NonFiniteReference_FailsClosed(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		ev := presence.Evaluate(6.3703, 2.3912, fp(bad), fp(2.3912), 100)
		assert.False(t, ev.WithinTolerance)
		assert.Nil(t, ev.DistanceMeters)
		assert.Equal(t, presence.ReasonMissingReference, ev.Reason)
	}
}

func TestEvaluate_InvalidCheckinCoordinate_FailsClosed(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
	}{
		{"nan latitude", math.NaN(), 2.3912},
		{"inf longitude", 6.3703, math.Inf(1)},
		{"latitude out of range", 91.0, 2.3912},
		{"longitude out of range", 6.3703, -181.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := presence.Evaluate(tc.lat, tc.lon, fp(6.3703), fp(2.3912), 100)
			assert.False(t, ev.WithinTolerance)
			assert.Nil(t, ev.DistanceMeters)
			assert.Equal(t, presence.ReasonInvalidCoordinate, ev.Reason)
		})
	}
}

// =============================================================================
// DISTANCE VERDICTS
// =============================================================================

func TestEvaluate_SamePoint_WithinTolerance(t *testing.T) {
	ev := presence.Evaluate(6.3703, 2.3912, fp(6.3703), fp(2.3912), 100)

	require.NotNil(t, ev.DistanceMeters)
	assert.Equal(t, 0.0, *ev.DistanceMeters)
	assert.True(t, ev.WithinTolerance)
	assert.Equal(t, presence.ReasonWithinTolerance, ev.Reason)
}

func TestEvaluate_NearbyPoint_WithinTolerance(t *testing.T) {
	// ~15m away from the reference, 100m tolerance
	ev := presence.Evaluate(6.3704, 2.3913, fp(6.3703), fp(2.3912), 100)

	require.NotNil(t, ev.DistanceMeters)
	assert.Less(t, *ev.DistanceMeters, 100.0)
	assert.True(t, ev.WithinTolerance)
}

func TestEvaluate_FarPoint_OutsideTolerance(t *testing.T) {
	// ~1.3km away, 100m tolerance
	ev := presence.Evaluate(6.3800, 2.4000, fp(6.3703), fp(2.3912), 100)

	require.NotNil(t, ev.DistanceMeters)
	assert.Greater(t, *ev.DistanceMeters, 100.0)
	assert.False(t, ev.WithinTolerance)
	assert.Equal(t, presence.ReasonOutsideTolerance, ev.Reason)
}

func TestEvaluate_DistanceEqualToTolerance_CountsAsWithin(t *testing.T) {
	// Compute the actual distance first, then use it verbatim as the
	// tolerance: the boundary must count as within (<=, not <).
	probe := presence.Evaluate(6.3704, 2.3913, fp(6.3703), fp(2.3912), 1)
	require.NotNil(t, probe.DistanceMeters)

	ev := presence.Evaluate(6.3704, 2.3913, fp(6.3703), fp(2.3912), *probe.DistanceMeters)
	assert.True(t, ev.WithinTolerance)
	assert.Equal(t, presence.ReasonWithinTolerance, ev.Reason)
}

func TestEvaluate_RecordsToleranceEvenWhenFailClosed(t *testing.T) {
	ev := presence.Evaluate(6.3703, 2.3912, nil, nil, 250)
	assert.Equal(t, 250.0, ev.ToleranceMeters)
}

func TestEvaluateCheckin_UsesAgentReference(t *testing.T) {
	agent := presence.Agent{
		ID:                    "agent-1",
		ReferenceLat:          fp(6.3703),
		ReferenceLon:          fp(2.3912),
		ToleranceRadiusMeters: 100,
	}
	c := presence.Checkin{ID: "c-1", AgentID: agent.ID, Lat: 6.3703, Lon: 2.3912}

	ev := presence.EvaluateCheckin(c, agent)
	assert.True(t, ev.WithinTolerance)
	assert.Equal(t, 100.0, ev.ToleranceMeters)
}
