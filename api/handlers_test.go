/*
handlers_test.go - HTTP-level tests for the presence API

Tests for:
- Agent creation and reference validation at the boundary
- Checkin submission pipeline (verdicts, fail-closed conditions)
- Mission lifecycle over HTTP
- Admin relink endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store, time.UTC)))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func seedAgent(t *testing.T, store *sqlite.Store, id string, refLat, refLon *float64) {
	t.Helper()
	require.NoError(t, store.SaveAgent(context.Background(), presence.Agent{
		ID:                    presence.AgentID(id),
		Name:                  "Test Agent",
		Role:                  presence.RoleAgent,
		ReferenceLat:          refLat,
		ReferenceLon:          refLon,
		ToleranceRadiusMeters: 100,
		CreatedAt:             time.Now().UTC(),
	}))
}

func fp(v float64) *float64 { return &v }

// =============================================================================
// AGENTS
// =============================================================================

func TestCreateAgent_Success(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/api/agents", map[string]any{
		"name":                    "Awa K.",
		"reference_lat":           6.3703,
		"reference_lon":           2.3912,
		"tolerance_radius_meters": 150,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "agent", body["role"])
	assert.Equal(t, 150.0, body["tolerance_radius_meters"])
}

func TestCreateAgent_PartialReference_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/api/agents", map[string]any{
		"name":                    "Awa K.",
		"reference_lat":           6.3703,
		"tolerance_radius_meters": 150,
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "both")
}

func TestCreateAgent_NonPositiveTolerance_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/agents", map[string]any{
		"name":                    "Awa K.",
		"tolerance_radius_meters": 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateReference_RoundTrip(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", nil, nil)

	resp, body := doJSON(t, "PUT", srv.URL+"/api/agents/agent-1/reference", map[string]any{
		"reference_lat":           6.5,
		"reference_lon":           2.6,
		"tolerance_radius_meters": 200,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6.5, body["reference_lat"])
	assert.Equal(t, 200.0, body["tolerance_radius_meters"])
}

func TestGetAgent_Missing_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "GET", srv.URL+"/api/agents/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CHECKIN SUBMISSION
// =============================================================================

func TestSubmitCheckin_WithinTolerance(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	resp, body := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
		"lat":       6.3703,
		"lon":       2.3912,
		"timestamp": "2025-03-10T09:00:00Z",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	eval := body["evaluation"].(map[string]any)
	assert.Equal(t, true, eval["within_tolerance"])
	assert.Equal(t, "within tolerance", eval["reason"])

	pres := body["presence"].(map[string]any)
	assert.Equal(t, "present", pres["status"])
	assert.Equal(t, "2025-03-10", pres["date"])
}

func TestSubmitCheckin_OutsideTolerance_StillCreated(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	// ~1.3km from the reference, 100m tolerance: a verdict, not an error.
	resp, body := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
		"lat": 6.3800,
		"lon": 2.4000,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eval := body["evaluation"].(map[string]any)
	assert.Equal(t, false, eval["within_tolerance"])
	assert.Equal(t, "outside tolerance", eval["reason"])
	pres := body["presence"].(map[string]any)
	assert.Equal(t, "out_of_zone", pres["status"])
}

func TestSubmitCheckin_MissingReference_FailClosedVerdict(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", nil, nil)

	resp, body := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
		"lat": 6.3703,
		"lon": 2.3912,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eval := body["evaluation"].(map[string]any)
	assert.Equal(t, false, eval["within_tolerance"])
	assert.Equal(t, "missing reference coordinates", eval["reason"])
	assert.Nil(t, eval["distance_meters"])
}

func TestSubmitCheckin_InvalidType_Rejected(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	resp, _ := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
		"lat": 6.3703, "lon": 2.3912, "type": "teleport",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitCheckin_UnknownMission_NotFound(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	resp, _ := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
		"lat": 6.3703, "lon": 2.3912, "mission_id": "m-nope",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// MISSION LIFECYCLE
// =============================================================================

func TestMission_StartAndEnd(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	// Start: creates the mission and its start checkin in one call.
	resp, body := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/missions", map[string]any{
		"label":     "Tournée Zou",
		"lat":       6.3703,
		"lon":       2.3912,
		"timestamp": "2025-03-10T08:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	mission := body["mission"].(map[string]any)
	missionID := mission["id"].(string)
	assert.Equal(t, "active", mission["status"])
	checkin := body["checkin"].(map[string]any)
	assert.Equal(t, "start_mission", checkin["type"])
	assert.Equal(t, missionID, checkin["mission_id"])

	// End: closes the mission and records the end checkin.
	resp, body = doJSON(t, "POST", fmt.Sprintf("%s/api/missions/%s/end", srv.URL, missionID), map[string]any{
		"lat":       6.3704,
		"lon":       2.3913,
		"timestamp": "2025-03-10T16:00:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mission = body["mission"].(map[string]any)
	assert.Equal(t, "completed", mission["status"])
	assert.NotEmpty(t, mission["ended_at"])

	// Ending again conflicts.
	resp, _ = doJSON(t, "POST", fmt.Sprintf("%s/api/missions/%s/end", srv.URL, missionID), map[string]any{
		"lat": 6.3704, "lon": 2.3913,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMission_ForceEnd(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))
	ctx := context.Background()

	require.NoError(t, store.SaveMission(ctx, presence.Mission{
		ID: "m-stuck", AgentID: "agent-1", Status: presence.MissionActive,
		StartedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		CreatedAt: time.Now().UTC(),
	}))

	resp, body := doJSON(t, "POST", srv.URL+"/api/admin/missions/m-stuck/force-end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	// No synthetic end checkin was fabricated.
	checkins, err := store.ListCheckins(ctx, "agent-1",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, checkins)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestGetMonthlyReport_OverHTTP(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))

	for d := 3; d <= 4; d++ {
		resp, _ := doJSON(t, "POST", srv.URL+"/api/agents/agent-1/checkins", map[string]any{
			"lat":       6.3703,
			"lon":       2.3912,
			"timestamp": fmt.Sprintf("2025-03-%02dT09:00:00Z", d),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/agents/agent-1/report/2025-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, body["total_checkins"])
	assert.Equal(t, 2.0, body["worked_days"])
	assert.Equal(t, 2.0, body["within_tolerance"])
}

func TestGetMonthlyReport_BadMonth_Rejected(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", nil, nil)

	resp, _ := doJSON(t, "GET", srv.URL+"/api/agents/agent-1/report/march", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// ADMIN - relink
// =============================================================================

func TestAdminRelink_RepairsOrphan(t *testing.T) {
	srv, store := newTestServer(t)
	seedAgent(t, store, "agent-1", fp(6.3703), fp(2.3912))
	ctx := context.Background()

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCheckin(ctx, presence.Checkin{
		ID: "c-1", AgentID: "agent-1", Lat: 6.3703, Lon: 2.3912,
		Timestamp: at, Type: presence.CheckinPing, CreatedAt: at,
	}))
	require.NoError(t, store.SaveValidation(ctx, presence.ValidationRecord{
		ID: "v-orphan", AgentID: "agent-1", ToleranceMeters: 100,
		Valid: true, Reason: "within tolerance", CreatedAt: at.Add(time.Minute),
	}))

	resp, body := doJSON(t, "POST", srv.URL+"/api/admin/relink", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["scanned"])
	assert.Equal(t, 1.0, body["relinked"])
	assert.Equal(t, 0.0, body["unresolved"])

	orphans, err := store.ListOrphanValidations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestAdminOrphans_ListsUnresolved(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.SaveValidation(ctx, presence.ValidationRecord{
		ID: "v-orphan", AgentID: "agent-1", ToleranceMeters: 100,
		Valid: true, Reason: "within tolerance",
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}))

	req, err := http.NewRequest("GET", srv.URL+"/api/admin/orphans", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "v-orphan", out[0]["id"])
}
