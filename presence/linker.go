/*
linker.go - Validation creation and orphan repair

PURPOSE:
  Maintains the invariant that every validation record references its
  originating checkin.

  CreateValidation is the synchronous path: called from checkin
  submission, it always sets the checkin link at creation time, which
  removes the orphaned-validation defect class at the source.

  RelinkOrphans is the maintenance path: a deterministic, idempotent
  sweep over historical validations whose checkin link is null or
  dangling. It replaces the pile of one-off repair scripts that used to
  patch these rows by hand.

CONCURRENCY:
  RelinkOrphans is safe to run concurrently with new submissions: it only
  touches records it observed as orphaned, and the link update is a
  compare-and-set, so a freshly created, already-linked validation is
  never overwritten.

DETERMINISM:
  Candidate matching is nearest-timestamp within a window around the
  validation's creation time; ties resolve to the earlier checkin. When
  no candidate matches, the record is counted unresolved and left for
  human review - the sweep never guesses. Re-running on a clean dataset
  relinks nothing.
*/
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultRelinkWindow bounds how far a candidate checkin's timestamp may
// sit from the orphaned validation's creation time.
const DefaultRelinkWindow = 2 * time.Hour

// DefaultRelinkLimit caps how many orphans one sweep processes.
const DefaultRelinkLimit = 500

// Linker creates validation records and repairs broken checkin links.
type Linker struct {
	store Store
}

func NewLinker(store Store) *Linker {
	return &Linker{store: store}
}

// CreateValidation persists the evaluation verdict for a checkin. The
// checkin link is always set; a validation can only be born linked.
func (l *Linker) CreateValidation(ctx context.Context, c Checkin, ev Evaluation) (*ValidationRecord, error) {
	checkinID := c.ID
	v := ValidationRecord{
		ID:              uuid.NewString(),
		CheckinID:       &checkinID,
		AgentID:         c.AgentID,
		DistanceMeters:  ev.DistanceMeters,
		ToleranceMeters: ev.ToleranceMeters,
		Valid:           ev.WithinTolerance,
		Reason:          ev.Reason,
		CreatedAt:       time.Now().UTC(),
	}
	if err := l.store.SaveValidation(ctx, v); err != nil {
		return nil, err
	}
	return &v, nil
}

// RelinkOptions tunes an orphan sweep. Zero values take the defaults.
type RelinkOptions struct {
	// Window is the half-width of the candidate search window around the
	// validation's creation time.
	Window time.Duration

	// Limit caps the number of orphans examined in one sweep.
	Limit int
}

// RelinkSummary reports what a sweep did.
type RelinkSummary struct {
	Scanned       int      `json:"scanned"`
	Relinked      int      `json:"relinked"`
	Unresolved    int      `json:"unresolved"`
	UnresolvedIDs []string `json:"unresolved_ids,omitempty"`
}

// RelinkOrphans finds validations with a null or dangling checkin link
// and attempts to restore the link from the agent's checkin history.
// Records it cannot resolve are reported, never guessed at.
func (l *Linker) RelinkOrphans(ctx context.Context, opts RelinkOptions) (RelinkSummary, error) {
	window := opts.Window
	if window <= 0 {
		window = DefaultRelinkWindow
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRelinkLimit
	}

	orphans, err := l.store.ListOrphanValidations(ctx, limit)
	if err != nil {
		return RelinkSummary{}, err
	}

	summary := RelinkSummary{Scanned: len(orphans)}
	for _, v := range orphans {
		candidate, err := l.findCandidate(ctx, v, window)
		if err != nil {
			return summary, err
		}
		if candidate == nil {
			summary.Unresolved++
			summary.UnresolvedIDs = append(summary.UnresolvedIDs, v.ID)
			continue
		}

		updated, err := l.store.LinkValidation(ctx, v.ID, v.CheckinID, candidate.ID)
		if err != nil {
			return summary, err
		}
		if updated {
			summary.Relinked++
		}
		// Not updated means someone linked it since we listed it; the
		// invariant holds either way, nothing to count.
	}

	return summary, nil
}

// findCandidate returns the agent's checkin nearest in time to the
// validation's creation, within ±window, or nil when none qualifies.
func (l *Linker) findCandidate(ctx context.Context, v ValidationRecord, window time.Duration) (*Checkin, error) {
	from := v.CreatedAt.Add(-window)
	to := v.CreatedAt.Add(window)

	checkins, err := l.store.ListCheckins(ctx, v.AgentID, from, to)
	if err != nil {
		return nil, err
	}
	if len(checkins) == 0 {
		return nil, nil
	}

	best := checkins[0]
	bestGap := absGap(best.Timestamp, v.CreatedAt)
	for _, c := range checkins[1:] {
		gap := absGap(c.Timestamp, v.CreatedAt)
		// Strict < keeps the earlier checkin on a tie: ListCheckins is
		// ordered by timestamp, so reruns pick the same candidate.
		if gap < bestGap {
			best = c
			bestGap = gap
		}
	}
	return &best, nil
}

func absGap(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
