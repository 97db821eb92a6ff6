/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing
  field renaming and version evolution without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (required fields, both-or-neither reference,
  tolerance > 0) happens in handlers before anything reaches the domain
  core. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/report"
)

// =============================================================================
// AGENTS
// =============================================================================

type AgentDTO struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Role                  string   `json:"role"`
	ReferenceLat          *float64 `json:"reference_lat"`
	ReferenceLon          *float64 `json:"reference_lon"`
	ToleranceRadiusMeters float64  `json:"tolerance_radius_meters"`
	CreatedAt             string   `json:"created_at,omitempty"`
}

type CreateAgentRequest struct {
	ID                    string   `json:"id,omitempty"`
	Name                  string   `json:"name"`
	Role                  string   `json:"role,omitempty"`
	ReferenceLat          *float64 `json:"reference_lat,omitempty"`
	ReferenceLon          *float64 `json:"reference_lon,omitempty"`
	ToleranceRadiusMeters float64  `json:"tolerance_radius_meters"`
}

type UpdateReferenceRequest struct {
	ReferenceLat          *float64 `json:"reference_lat"`
	ReferenceLon          *float64 `json:"reference_lon"`
	ToleranceRadiusMeters float64  `json:"tolerance_radius_meters"`
}

// =============================================================================
// CHECKINS
// =============================================================================

type SubmitCheckinRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Type      string  `json:"type,omitempty"`      // defaults to "checkin"
	Timestamp string  `json:"timestamp,omitempty"` // RFC3339; defaults to now
	Note      string  `json:"note,omitempty"`
	PhotoURL  string  `json:"photo_url,omitempty"`
	MissionID *string `json:"mission_id,omitempty"`
}

type CheckinDTO struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	MissionID *string `json:"mission_id,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Note      string  `json:"note,omitempty"`
	PhotoURL  string  `json:"photo_url,omitempty"`
}

// EvaluationDTO is the definitive tolerance verdict for a submission.
// Distance is null for fail-closed verdicts (missing reference, bad
// coordinate); the verdict itself is never ambiguous.
type EvaluationDTO struct {
	DistanceMeters  *float64 `json:"distance_meters"`
	WithinTolerance bool     `json:"within_tolerance"`
	Reason          string   `json:"reason"`
	ToleranceMeters float64  `json:"tolerance_meters"`
}

type PresenceDTO struct {
	ID              string   `json:"id"`
	AgentID         string   `json:"agent_id"`
	CheckinID       string   `json:"checkin_id"`
	Date            string   `json:"date"`
	StartTime       string   `json:"start_time"`
	EndTime         *string  `json:"end_time,omitempty"`
	Lat             float64  `json:"lat"`
	Lon             float64  `json:"lon"`
	WithinTolerance bool     `json:"within_tolerance"`
	DistanceMeters  *float64 `json:"distance_meters"`
	Status          string   `json:"status"`
}

// SubmitCheckinResponse is the full result of one submission: the stored
// checkin, its verdict, and the (possibly pre-existing) presence record.
type SubmitCheckinResponse struct {
	Checkin    CheckinDTO    `json:"checkin"`
	Evaluation EvaluationDTO `json:"evaluation"`
	Presence   PresenceDTO   `json:"presence"`
}

// =============================================================================
// MISSIONS
// =============================================================================

type StartMissionRequest struct {
	Label     string  `json:"label,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp,omitempty"`
	Note      string  `json:"note,omitempty"`
}

type EndMissionRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp,omitempty"`
	Note      string  `json:"note,omitempty"`
}

type MissionDTO struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	Label     string  `json:"label,omitempty"`
	Status    string  `json:"status"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// =============================================================================
// PLANIFICATIONS
// =============================================================================

type CreatePlanificationRequest struct {
	Date            string `json:"date"` // YYYY-MM-DD
	Description     string `json:"description,omitempty"`
	ResultatJournee string `json:"resultat_journee,omitempty"`
}

type PlanificationDTO struct {
	ID              string `json:"id"`
	AgentID         string `json:"agent_id"`
	Date            string `json:"date"`
	Description     string `json:"description,omitempty"`
	ResultatJournee string `json:"resultat_journee,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

// ReportDTO flattens the decimal rates to floats at the API boundary.
type ReportDTO struct {
	AgentID          string  `json:"agent_id"`
	Period           string  `json:"period"` // YYYY-MM
	TotalCheckins    int     `json:"total_checkins"`
	WorkedDays       int     `json:"worked_days"`
	WorkingDays      int     `json:"working_days"`
	PresenceRate     float64 `json:"presence_rate"`
	FieldTimeHours   float64 `json:"field_time_hours"`
	ExecutionRate    float64 `json:"execution_rate"`
	WithinTolerance  int     `json:"within_tolerance"`
	OutsideTolerance int     `json:"outside_tolerance"`
	Missions         int     `json:"missions"`
}

// =============================================================================
// MAINTENANCE
// =============================================================================

type RelinkRequest struct {
	WindowMinutes int `json:"window_minutes,omitempty"`
	Limit         int `json:"limit,omitempty"`
}

type ValidationDTO struct {
	ID              string   `json:"id"`
	CheckinID       *string  `json:"checkin_id"`
	AgentID         string   `json:"agent_id"`
	DistanceMeters  *float64 `json:"distance_meters"`
	ToleranceMeters float64  `json:"tolerance_meters"`
	Valid           bool     `json:"valid"`
	Reason          string   `json:"reason"`
	CreatedAt       string   `json:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAgentDTO(a presence.Agent) AgentDTO {
	return AgentDTO{
		ID:                    string(a.ID),
		Name:                  a.Name,
		Role:                  string(a.Role),
		ReferenceLat:          a.ReferenceLat,
		ReferenceLon:          a.ReferenceLon,
		ToleranceRadiusMeters: a.ToleranceRadiusMeters,
		CreatedAt:             a.CreatedAt.Format(time.RFC3339),
	}
}

func toCheckinDTO(c presence.Checkin) CheckinDTO {
	dto := CheckinDTO{
		ID:        string(c.ID),
		AgentID:   string(c.AgentID),
		Lat:       c.Lat,
		Lon:       c.Lon,
		Timestamp: c.Timestamp.Format(time.RFC3339),
		Type:      string(c.Type),
		Note:      c.Note,
		PhotoURL:  c.PhotoURL,
	}
	if c.MissionID != nil {
		mid := string(*c.MissionID)
		dto.MissionID = &mid
	}
	return dto
}

func toEvaluationDTO(ev presence.Evaluation) EvaluationDTO {
	return EvaluationDTO{
		DistanceMeters:  ev.DistanceMeters,
		WithinTolerance: ev.WithinTolerance,
		Reason:          ev.Reason,
		ToleranceMeters: ev.ToleranceMeters,
	}
}

func toPresenceDTO(p presence.PresenceRecord) PresenceDTO {
	dto := PresenceDTO{
		ID:              p.ID,
		AgentID:         string(p.AgentID),
		CheckinID:       string(p.CheckinID),
		Date:            p.Date.Format("2006-01-02"),
		StartTime:       p.StartTime.Format(time.RFC3339),
		Lat:             p.Lat,
		Lon:             p.Lon,
		WithinTolerance: p.WithinTolerance,
		DistanceMeters:  p.DistanceMeters,
		Status:          string(p.Status),
	}
	if p.EndTime != nil {
		s := p.EndTime.Format(time.RFC3339)
		dto.EndTime = &s
	}
	return dto
}

func toMissionDTO(m presence.Mission) MissionDTO {
	dto := MissionDTO{
		ID:        string(m.ID),
		AgentID:   string(m.AgentID),
		Label:     m.Label,
		Status:    string(m.Status),
		StartedAt: m.StartedAt.Format(time.RFC3339),
	}
	if m.EndedAt != nil {
		s := m.EndedAt.Format(time.RFC3339)
		dto.EndedAt = &s
	}
	return dto
}

func toPlanificationDTO(p presence.Planification) PlanificationDTO {
	return PlanificationDTO{
		ID:              p.ID,
		AgentID:         string(p.AgentID),
		Date:            p.Date.Format("2006-01-02"),
		Description:     p.Description,
		ResultatJournee: p.ResultatJournee,
	}
}

func toValidationDTO(v presence.ValidationRecord) ValidationDTO {
	dto := ValidationDTO{
		ID:              v.ID,
		AgentID:         string(v.AgentID),
		DistanceMeters:  v.DistanceMeters,
		ToleranceMeters: v.ToleranceMeters,
		Valid:           v.Valid,
		Reason:          v.Reason,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
	}
	if v.CheckinID != nil {
		s := string(*v.CheckinID)
		dto.CheckinID = &s
	}
	return dto
}

func toReportDTO(r *report.Report) ReportDTO {
	return ReportDTO{
		AgentID:          string(r.AgentID),
		Period:           time.Date(r.Year, r.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
		TotalCheckins:    r.TotalCheckins,
		WorkedDays:       r.WorkedDays,
		WorkingDays:      r.WorkingDays,
		PresenceRate:     r.PresenceRate.InexactFloat64(),
		FieldTimeHours:   r.FieldTimeHours.InexactFloat64(),
		ExecutionRate:    r.ExecutionRate.InexactFloat64(),
		WithinTolerance:  r.WithinTolerance,
		OutsideTolerance: r.OutsideTolerance,
		Missions:         r.Missions,
	}
}
