/*
Package report aggregates checkins, validations, missions and
planifications into per-agent monthly metrics.

PURPOSE:
  Produces the monthly report consumed by supervisors and admins:
  presence rate (worked vs planned days), field time (per-mission checkin
  spans), and execution rate (planified activities marked realized).

READ-ONLY:
  The aggregator never mutates source rows. It reads a calendar month as
  a closed interval in the agent's local calendar and computes.

PRECISION:
  Rates and hour totals use decimal.Decimal. A month of 21/22 worked
  days must not render as 0.9545454545454545.

ZERO-DIVISION SAFETY:
  An agent with zero planifications and zero checkins gets a report with
  all rates at 0, not an error and not NaN.

SEE ALSO:
  - realized.go: the execution-rate text heuristic and its limitations
*/
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ccrb/presence-engine/presence"
)

// =============================================================================
// REPORT - Per-agent monthly metrics
// =============================================================================

type Report struct {
	AgentID presence.AgentID `json:"agent_id"`
	Year    int              `json:"year"`
	Month   time.Month       `json:"month"`

	TotalCheckins int `json:"total_checkins"`

	// WorkedDays is the count of distinct calendar dates with at least
	// one checkin. WorkingDays is the count of distinct dates with a
	// planification entry.
	WorkedDays  int `json:"worked_days"`
	WorkingDays int `json:"working_days"`

	// PresenceRate = WorkedDays / WorkingDays, 0 when WorkingDays is 0.
	PresenceRate decimal.Decimal `json:"presence_rate"`

	// FieldTimeHours sums, per mission overlapping the month, the span
	// between the mission's first and last checkin.
	FieldTimeHours decimal.Decimal `json:"field_time_hours"`

	// ExecutionRate is the fraction of planifications whose free-text
	// outcome indicates completion. See IsRealized for the heuristic.
	ExecutionRate decimal.Decimal `json:"execution_rate"`

	// Tolerance verdict counts over the month's validations.
	WithinTolerance  int `json:"within_tolerance"`
	OutsideTolerance int `json:"outside_tolerance"`

	Missions int `json:"missions"`
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator builds monthly reports from a presence store.
type Aggregator struct {
	store presence.Store
	loc   *time.Location
}

// NewAggregator creates an Aggregator. loc is the agent-local calendar
// used for day bucketing and month boundaries; nil means UTC.
func NewAggregator(store presence.Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, loc: loc}
}

// BuildMonthlyReport computes the agent's metrics for yearMonth
// ("YYYY-MM"). The month is a closed interval [first day, last day].
func (ag *Aggregator) BuildMonthlyReport(ctx context.Context, agentID presence.AgentID, yearMonth string) (*Report, error) {
	year, month, err := presence.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	period := presence.MonthPeriod(year, month, ag.loc)

	r := &Report{
		AgentID:        agentID,
		Year:           year,
		Month:          month,
		PresenceRate:   decimal.Zero,
		FieldTimeHours: decimal.Zero,
		ExecutionRate:  decimal.Zero,
	}

	checkins, err := ag.store.ListCheckins(ctx, agentID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	r.TotalCheckins = len(checkins)
	r.WorkedDays = distinctDays(checkins, ag.loc)

	plans, err := ag.store.ListPlanifications(ctx, agentID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	r.WorkingDays = distinctPlanDays(plans, ag.loc)

	if r.WorkingDays > 0 {
		r.PresenceRate = decimal.NewFromInt(int64(r.WorkedDays)).
			Div(decimal.NewFromInt(int64(r.WorkingDays))).Round(4)
	}

	if len(plans) > 0 {
		realized := 0
		for _, p := range plans {
			if IsRealized(p.ResultatJournee) {
				realized++
			}
		}
		r.ExecutionRate = decimal.NewFromInt(int64(realized)).
			Div(decimal.NewFromInt(int64(len(plans)))).Round(4)
	}

	fieldTime, missions, err := ag.fieldTime(ctx, agentID, period)
	if err != nil {
		return nil, err
	}
	r.FieldTimeHours = fieldTime
	r.Missions = missions

	validations, err := ag.store.ListValidations(ctx, agentID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	for _, v := range validations {
		if v.Valid {
			r.WithinTolerance++
		} else {
			r.OutsideTolerance++
		}
	}

	return r, nil
}

// fieldTime sums first-to-last checkin spans per mission wholly or
// partially inside the period.
func (ag *Aggregator) fieldTime(ctx context.Context, agentID presence.AgentID, period presence.Period) (decimal.Decimal, int, error) {
	missions, err := ag.store.ListMissions(ctx, agentID, period.Start, period.End)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if len(missions) == 0 {
		return decimal.Zero, 0, nil
	}

	// One fetch covering every overlapping mission; a mission partially
	// in range contributes its full span, so the window extends beyond
	// the month on both sides.
	from, to := period.Start, period.End
	for _, m := range missions {
		if m.StartedAt.Before(from) {
			from = m.StartedAt
		}
		if m.EndedAt != nil && m.EndedAt.After(to) {
			to = *m.EndedAt
		}
	}
	checkins, err := ag.store.ListCheckins(ctx, agentID, from, to)
	if err != nil {
		return decimal.Zero, 0, err
	}

	tracked := make(map[presence.MissionID]bool, len(missions))
	for _, m := range missions {
		tracked[m.ID] = true
	}

	type span struct{ first, last time.Time }
	spans := make(map[presence.MissionID]*span)
	for _, c := range checkins {
		if c.MissionID == nil || !tracked[*c.MissionID] {
			continue
		}
		s := spans[*c.MissionID]
		if s == nil {
			spans[*c.MissionID] = &span{first: c.Timestamp, last: c.Timestamp}
			continue
		}
		if c.Timestamp.Before(s.first) {
			s.first = c.Timestamp
		}
		if c.Timestamp.After(s.last) {
			s.last = c.Timestamp
		}
	}

	// A mission without checkins contributes nothing.
	total := decimal.Zero
	for _, s := range spans {
		total = total.Add(decimal.NewFromFloat(s.last.Sub(s.first).Hours()))
	}
	return total.Round(2), len(missions), nil
}

func distinctDays(checkins []presence.Checkin, loc *time.Location) int {
	days := make(map[time.Time]struct{})
	for _, c := range checkins {
		days[presence.DayOf(c.Timestamp, loc)] = struct{}{}
	}
	return len(days)
}

func distinctPlanDays(plans []presence.Planification, loc *time.Location) int {
	days := make(map[time.Time]struct{})
	for _, p := range plans {
		days[presence.DayOf(p.Date, loc)] = struct{}{}
	}
	return len(days)
}
