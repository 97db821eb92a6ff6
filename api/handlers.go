/*
handlers.go - HTTP API handlers for the presence engine

PURPOSE:
  Exposes the presence engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Agents:
    GET    /api/agents                     List all agents
    POST   /api/agents                     Create agent
    GET    /api/agents/{id}                Get agent details
    PUT    /api/agents/{id}/reference      Update reference point + tolerance

  Checkins:
    POST   /api/agents/{id}/checkins       Submit a checkin (full pipeline)
    GET    /api/agents/{id}/checkins       Checkin history (month or from/to)
    GET    /api/agents/{id}/presence       Presence records

  Missions:
    POST   /api/agents/{id}/missions       Start mission (+ start checkin)
    GET    /api/agents/{id}/missions       List agent missions
    POST   /api/missions/{id}/end          End mission (+ end checkin)

  Planifications:
    POST   /api/agents/{id}/planifications Create planification
    GET    /api/agents/{id}/planifications List (month or from/to)

  Reports:
    GET    /api/agents/{id}/report/{month} Monthly report (YYYY-MM)

  Admin:
    POST   /api/admin/relink               Run the orphan-relink sweep
    GET    /api/admin/orphans              List unresolved orphan validations
    POST   /api/admin/missions/{id}/force-end  Close a mission left open

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input at the boundary (required fields, invariants)
  3. Call domain logic (recorder, linker, aggregator)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  - 400: validation errors, invalid input
  - 404: resource not found
  - 409: mission already closed
  - 503: storage unavailable (retryable)
  - 500: everything else

  Soft conditions (missing reference, bad coordinate) are NOT errors:
  checkin submission always returns a definitive within/outside verdict.

SECURITY NOTE:
  No authentication middleware. JWT issuance/verification lives in the
  gateway in front of this service.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      presence.Store
	Recorder   *presence.Recorder
	Aggregator *report.Aggregator
	Loc        *time.Location
}

// NewHandler creates a new handler over the given store. loc drives day
// bucketing and month boundaries; nil means UTC.
func NewHandler(store presence.Store, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:      store,
		Recorder:   presence.NewRecorder(store, loc),
		Aggregator: report.NewAggregator(store, loc),
		Loc:        loc,
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := validateReference(req.ReferenceLat, req.ReferenceLon, req.ToleranceRadiusMeters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	role := presence.Role(req.Role)
	if role == "" {
		role = presence.RoleAgent
	}
	switch role {
	case presence.RoleAgent, presence.RoleSuperviseur, presence.RoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	agent := presence.Agent{
		ID:                    presence.AgentID(id),
		Name:                  req.Name,
		Role:                  role,
		ReferenceLat:          req.ReferenceLat,
		ReferenceLon:          req.ReferenceLon,
		ToleranceRadiusMeters: req.ToleranceRadiusMeters,
		CreatedAt:             time.Now().UTC(),
	}
	if err := h.Store.SaveAgent(r.Context(), agent); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(agent))
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]AgentDTO, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), presence.AgentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(*agent))
}

func (h *Handler) UpdateReference(w http.ResponseWriter, r *http.Request) {
	var req UpdateReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateReference(req.ReferenceLat, req.ReferenceLon, req.ToleranceRadiusMeters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := presence.AgentID(chi.URLParam(r, "id"))
	if err := h.Store.UpdateAgentReference(r.Context(), id, req.ReferenceLat, req.ReferenceLon, req.ToleranceRadiusMeters); err != nil {
		h.writeDomainError(w, err)
		return
	}
	agent, err := h.Store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(*agent))
}

// validateReference enforces the both-or-neither invariant and a strictly
// positive tolerance at the ingestion boundary.
func validateReference(lat, lon *float64, tolerance float64) error {
	if (lat == nil) != (lon == nil) {
		return presence.ErrPartialReference
	}
	if tolerance <= 0 {
		return presence.ErrInvalidTolerance
	}
	return nil
}

// =============================================================================
// CHECKINS
// =============================================================================

// SubmitCheckin runs the full submission pipeline: persist the checkin,
// evaluate it, create a linked validation, record presence idempotently.
func (h *Handler) SubmitCheckin(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), presence.AgentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var req SubmitCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	checkin, httpErr := h.buildCheckin(r, agent.ID, req)
	if httpErr != nil {
		writeError(w, httpErr.status, httpErr.message)
		return
	}

	if err := h.Store.SaveCheckin(r.Context(), *checkin); err != nil {
		h.writeDomainError(w, err)
		return
	}

	record, ev, err := h.Recorder.RecordPresence(r.Context(), *checkin, *agent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitCheckinResponse{
		Checkin:    toCheckinDTO(*checkin),
		Evaluation: toEvaluationDTO(ev),
		Presence:   toPresenceDTO(*record),
	})
}

type httpError struct {
	status  int
	message string
}

func (h *Handler) buildCheckin(r *http.Request, agentID presence.AgentID, req SubmitCheckinRequest) (*presence.Checkin, *httpError) {
	typ := presence.CheckinType(req.Type)
	if typ == "" {
		typ = presence.CheckinPing
	}
	switch typ {
	case presence.CheckinStartMission, presence.CheckinPing, presence.CheckinEndMission:
	default:
		return nil, &httpError{http.StatusBadRequest, "invalid checkin type"}
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, &httpError{http.StatusBadRequest, "invalid timestamp (want RFC3339)"}
		}
		ts = parsed.UTC()
	}

	checkin := presence.Checkin{
		ID:        presence.CheckinID(uuid.NewString()),
		AgentID:   agentID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		Timestamp: ts,
		Type:      typ,
		Note:      req.Note,
		PhotoURL:  req.PhotoURL,
		CreatedAt: time.Now().UTC(),
	}

	if req.MissionID != nil {
		mission, err := h.Store.GetMission(r.Context(), presence.MissionID(*req.MissionID))
		if err != nil {
			return nil, &httpError{http.StatusNotFound, "mission not found"}
		}
		if mission.AgentID != agentID {
			return nil, &httpError{http.StatusBadRequest, "mission belongs to another agent"}
		}
		if mission.Status != presence.MissionActive {
			return nil, &httpError{http.StatusConflict, "mission is not active"}
		}
		checkin.MissionID = &mission.ID
	}

	return &checkin, nil
}

func (h *Handler) ListCheckins(w http.ResponseWriter, r *http.Request) {
	period, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	checkins, err := h.Store.ListCheckins(r.Context(), presence.AgentID(chi.URLParam(r, "id")), period.Start, period.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]CheckinDTO, 0, len(checkins))
	for _, c := range checkins {
		out = append(out, toCheckinDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListPresence(w http.ResponseWriter, r *http.Request) {
	period, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.Store.ListPresence(r.Context(), presence.AgentID(chi.URLParam(r, "id")), period.Start, period.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]PresenceDTO, 0, len(records))
	for _, p := range records {
		out = append(out, toPresenceDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// MISSIONS
// =============================================================================

// StartMission creates an active mission and submits its start checkin
// through the regular pipeline.
func (h *Handler) StartMission(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), presence.AgentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var req StartMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp (want RFC3339)")
			return
		}
		ts = parsed.UTC()
	}

	mission := presence.Mission{
		ID:        presence.MissionID(uuid.NewString()),
		AgentID:   agent.ID,
		Label:     req.Label,
		Status:    presence.MissionActive,
		StartedAt: ts,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveMission(r.Context(), mission); err != nil {
		h.writeDomainError(w, err)
		return
	}

	checkin := presence.Checkin{
		ID:        presence.CheckinID(uuid.NewString()),
		AgentID:   agent.ID,
		MissionID: &mission.ID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		Timestamp: ts,
		Type:      presence.CheckinStartMission,
		Note:      req.Note,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveCheckin(r.Context(), checkin); err != nil {
		h.writeDomainError(w, err)
		return
	}

	record, ev, err := h.Recorder.RecordPresence(r.Context(), checkin, *agent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"mission":    toMissionDTO(mission),
		"checkin":    toCheckinDTO(checkin),
		"evaluation": toEvaluationDTO(ev),
		"presence":   toPresenceDTO(*record),
	})
}

// EndMission submits the end checkin and transitions the mission to
// completed.
func (h *Handler) EndMission(w http.ResponseWriter, r *http.Request) {
	mission, err := h.Store.GetMission(r.Context(), presence.MissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if mission.Status != presence.MissionActive {
		h.writeDomainError(w, presence.ErrMissionClosed)
		return
	}

	agent, err := h.Store.GetAgent(r.Context(), mission.AgentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var req EndMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp (want RFC3339)")
			return
		}
		ts = parsed.UTC()
	}

	checkin := presence.Checkin{
		ID:        presence.CheckinID(uuid.NewString()),
		AgentID:   agent.ID,
		MissionID: &mission.ID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		Timestamp: ts,
		Type:      presence.CheckinEndMission,
		Note:      req.Note,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveCheckin(r.Context(), checkin); err != nil {
		h.writeDomainError(w, err)
		return
	}

	record, ev, err := h.Recorder.RecordPresence(r.Context(), checkin, *agent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := h.Store.CloseMission(r.Context(), mission.ID, presence.MissionCompleted, ts); err != nil {
		h.writeDomainError(w, err)
		return
	}
	closed, err := h.Store.GetMission(r.Context(), mission.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mission":    toMissionDTO(*closed),
		"checkin":    toCheckinDTO(checkin),
		"evaluation": toEvaluationDTO(ev),
		"presence":   toPresenceDTO(*record),
	})
}

// ForceEndMission closes a mission left open, without synthesizing an
// end checkin. Admin maintenance surface.
func (h *Handler) ForceEndMission(w http.ResponseWriter, r *http.Request) {
	id := presence.MissionID(chi.URLParam(r, "id"))
	if err := h.Store.CloseMission(r.Context(), id, presence.MissionCompleted, time.Now().UTC()); err != nil {
		h.writeDomainError(w, err)
		return
	}
	mission, err := h.Store.GetMission(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionDTO(*mission))
}

func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	period, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	missions, err := h.Store.ListMissions(r.Context(), presence.AgentID(chi.URLParam(r, "id")), period.Start, period.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]MissionDTO, 0, len(missions))
	for _, m := range missions {
		out = append(out, toMissionDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PLANIFICATIONS
// =============================================================================

func (h *Handler) CreatePlanification(w http.ResponseWriter, r *http.Request) {
	agentID := presence.AgentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	var req CreatePlanificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, h.Loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
		return
	}

	plan := presence.Planification{
		ID:              uuid.NewString(),
		AgentID:         agentID,
		Date:            date,
		Description:     req.Description,
		ResultatJournee: req.ResultatJournee,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.Store.SavePlanification(r.Context(), plan); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanificationDTO(plan))
}

func (h *Handler) ListPlanifications(w http.ResponseWriter, r *http.Request) {
	period, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plans, err := h.Store.ListPlanifications(r.Context(), presence.AgentID(chi.URLParam(r, "id")), period.Start, period.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]PlanificationDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanificationDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) GetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	agentID := presence.AgentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	rep, err := h.Aggregator.BuildMonthlyReport(r.Context(), agentID, chi.URLParam(r, "month"))
	if err != nil {
		if presence.IsRetryable(err) {
			h.writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

// =============================================================================
// ADMIN / MAINTENANCE
// =============================================================================

// Relink runs one orphan-relink sweep and returns its summary.
func (h *Handler) Relink(w http.ResponseWriter, r *http.Request) {
	var req RelinkRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	opts := presence.RelinkOptions{Limit: req.Limit}
	if req.WindowMinutes > 0 {
		opts.Window = time.Duration(req.WindowMinutes) * time.Minute
	}

	summary, err := h.Recorder.Linker().RelinkOrphans(r.Context(), opts)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListOrphans exposes the unresolved validations for human review.
func (h *Handler) ListOrphans(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := parsePositiveInt(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	orphans, err := h.Store.ListOrphanValidations(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]ValidationDTO, 0, len(orphans))
	for _, v := range orphans {
		out = append(out, toValidationDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

// rangeFromQuery resolves ?month=YYYY-MM or ?from=&to= (RFC3339) to a
// closed interval. Defaults to the current calendar month.
func (h *Handler) rangeFromQuery(r *http.Request) (presence.Period, error) {
	q := r.URL.Query()

	if month := q.Get("month"); month != "" {
		year, m, err := presence.ParseYearMonth(month)
		if err != nil {
			return presence.Period{}, err
		}
		return presence.MonthPeriod(year, m, h.Loc), nil
	}

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return presence.Period{}, errors.New("invalid from (want RFC3339)")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return presence.Period{}, errors.New("invalid to (want RFC3339)")
		}
		return presence.Period{Start: start, End: end}, nil
	}

	now := time.Now().In(h.Loc)
	return presence.MonthPeriod(now.Year(), now.Month(), h.Loc), nil
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a positive integer")
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case presence.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, presence.ErrMissionClosed):
		writeError(w, http.StatusConflict, err.Error())
	case presence.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case presence.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
