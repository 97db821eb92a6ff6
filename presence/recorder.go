/*
recorder.go - Idempotent presence recording

PURPOSE:
  Turns a submitted checkin into a presence record plus a linked
  validation record. This is the synchronous half of the submission
  pipeline: the checkin has already been parsed, validated and persisted
  by the API boundary when it reaches the Recorder.

IDEMPOTENCY:
  The same checkin may arrive twice (client retry after a timeout, or a
  repair job reprocessing history). The Recorder:
  1. Fast-path: returns the existing presence record if one already
     references this checkin, without writing anything.
  2. Race window: the insert itself is constrained by a storage-level
     uniqueness guarantee on the originating checkin. On
     ErrDuplicatePresence it re-fetches and returns the existing record
     as success.
  Either way, exactly one presence record exists per checkin and both
  calls observe the same result.

FAILURE MODE:
  A storage failure surfaces as a retryable error and leaves no partial
  state: the presence insert is a single write, and a validation without
  a presence row is harmless (it is linked, not orphaned, and the retry
  fast-path tolerates it).
*/
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recorder builds and persists presence records from validated checkins.
type Recorder struct {
	store  Store
	linker *Linker
	loc    *time.Location
}

// NewRecorder creates a Recorder over the given store. loc controls day
// bucketing; nil means UTC.
func NewRecorder(store Store, loc *time.Location) *Recorder {
	return &Recorder{
		store:  store,
		linker: NewLinker(store),
		loc:    loc,
	}
}

// Linker returns the validation linker sharing this recorder's store.
func (r *Recorder) Linker() *Linker { return r.linker }

// RecordPresence evaluates the checkin against the agent's reference
// point, persists a linked validation record, and persists exactly one
// presence record for the checkin.
//
// The returned evaluation is always definitive: missing reference and
// malformed coordinates yield a fail-closed within=false verdict, never
// an error. Only infrastructure failures return a non-nil error.
func (r *Recorder) RecordPresence(ctx context.Context, c Checkin, a Agent) (*PresenceRecord, Evaluation, error) {
	ev := EvaluateCheckin(c, a)

	// Fast path: already recorded. Skips the validation write too, so
	// reprocessing history is a true no-op.
	existing, err := r.store.GetPresenceByCheckin(ctx, c.ID)
	if err != nil {
		return nil, ev, err
	}
	if existing != nil {
		return existing, ev, nil
	}

	if _, err := r.linker.CreateValidation(ctx, c, ev); err != nil {
		return nil, ev, err
	}

	record := buildPresenceRecord(c, ev, r.loc)
	if err := r.store.InsertPresence(ctx, record); err != nil {
		if errors.Is(err, ErrDuplicatePresence) {
			// Lost the race against a concurrent submission of the same
			// checkin. The row that won is the record.
			winner, fetchErr := r.store.GetPresenceByCheckin(ctx, c.ID)
			if fetchErr != nil {
				return nil, ev, fetchErr
			}
			if winner != nil {
				return winner, ev, nil
			}
		}
		return nil, ev, err
	}

	return &record, ev, nil
}

func buildPresenceRecord(c Checkin, ev Evaluation, loc *time.Location) PresenceRecord {
	status := PresenceStatusOutOfZone
	if ev.WithinTolerance {
		status = PresenceStatusPresent
	}

	return PresenceRecord{
		ID:              uuid.NewString(),
		AgentID:         c.AgentID,
		CheckinID:       c.ID,
		Date:            DayOf(c.Timestamp, loc),
		StartTime:       c.Timestamp,
		Lat:             c.Lat,
		Lon:             c.Lon,
		WithinTolerance: ev.WithinTolerance,
		DistanceMeters:  ev.DistanceMeters,
		Status:          status,
		Note:            c.Note,
		PhotoURL:        c.PhotoURL,
		CreatedAt:       time.Now().UTC(),
	}
}
