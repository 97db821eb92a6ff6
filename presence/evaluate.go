/*
evaluate.go - Tolerance evaluation against the agent's reference point

PURPOSE:
  Classifies a checkin coordinate as within/outside the agent's tolerance
  radius. This is the single authority for the within-tolerance verdict;
  the recorder, the validation linker and the API layer all consume its
  output rather than re-deriving distances.

FAIL-CLOSED POLICY:
  An agent without a configured reference point, or a checkin with a
  malformed coordinate, is never marked within tolerance by the automated
  check. These are SOFT conditions: the evaluation carries a reason string
  and the submission pipeline continues. They are not errors.

TIE-BREAK:
  A distance exactly equal to the tolerance radius counts as within
  tolerance (<=, not <).
*/
package presence

import "github.com/ccrb/presence-engine/geo"

// Evaluation reasons. Stored verbatim on validation records, so these
// strings are part of the data contract with historical rows.
const (
	ReasonMissingReference  = "missing reference coordinates"
	ReasonInvalidCoordinate = "invalid checkin coordinate"
	ReasonWithinTolerance   = "within tolerance"
	ReasonOutsideTolerance  = "outside tolerance"
)

// Evaluation is the verdict for one checkin coordinate.
// DistanceMeters is nil when no distance could be computed (fail-closed
// conditions); it is never NaN. ToleranceMeters records the radius the
// comparison used, even when the comparison never ran.
type Evaluation struct {
	DistanceMeters  *float64
	WithinTolerance bool
	Reason          string
	ToleranceMeters float64
}

// Evaluate classifies a checkin coordinate against a reference coordinate
// and tolerance radius.
//
//   - Missing reference (either component nil, or non-finite): fail-closed,
//     nil distance, ReasonMissingReference.
//   - Non-finite or out-of-range checkin coordinate: fail-closed, nil
//     distance, ReasonInvalidCoordinate.
//   - Otherwise: Haversine distance, within iff distance <= tolerance.
func Evaluate(checkinLat, checkinLon float64, refLat, refLon *float64, toleranceMeters float64) Evaluation {
	if refLat == nil || refLon == nil || !geo.IsFinite(*refLat, *refLon) {
		return Evaluation{Reason: ReasonMissingReference, ToleranceMeters: toleranceMeters}
	}

	if !geo.IsFinite(checkinLat, checkinLon) || !geo.InBounds(checkinLat, checkinLon) {
		return Evaluation{Reason: ReasonInvalidCoordinate, ToleranceMeters: toleranceMeters}
	}

	distance := geo.DistanceMeters(checkinLat, checkinLon, *refLat, *refLon)

	ev := Evaluation{DistanceMeters: &distance, ToleranceMeters: toleranceMeters}
	if distance <= toleranceMeters {
		ev.WithinTolerance = true
		ev.Reason = ReasonWithinTolerance
	} else {
		ev.Reason = ReasonOutsideTolerance
	}
	return ev
}

// EvaluateCheckin runs Evaluate with the agent's stored reference point
// and tolerance radius.
func EvaluateCheckin(c Checkin, a Agent) Evaluation {
	return Evaluate(c.Lat, c.Lon, a.ReferenceLat, a.ReferenceLon, a.ToleranceRadiusMeters)
}
