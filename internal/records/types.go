// Package records defines training-session records and the columnar dataset
// the analytics engines read from.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxScore is the upper bound of the score scale.
const MaxScore = 7.0

// PassThreshold is the score at or above which a session counts as passed.
const PassThreshold = 4.0

// Session timestamps must fall between EarliestOccurredAt and MaxFutureSkew
// past the current time. A zero timestamp means "unknown" and is accepted.
var (
	EarliestOccurredAt = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxFutureSkew      = 366 * 24 * time.Hour
)

// SessionRecord is a single completed training session. Records are inputs
// only; nothing in this module mutates them.
type SessionRecord struct {
	EntityID              string    `json:"entity_id"`
	EntityLabel           string    `json:"entity_label"`
	CohortID              string    `json:"cohort_id,omitempty"`
	ExerciseLabel         string    `json:"exercise_label"`
	DurationSeconds       int       `json:"duration_seconds"`
	Score                 float64   `json:"score"`
	AssistantInteractions int       `json:"assistant_interactions"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// Label returns the display label of the entity, falling back to its ID.
func (r SessionRecord) Label() string {
	if r.EntityLabel != "" {
		return r.EntityLabel
	}
	return r.EntityID
}

// ErrInvalidRecord is returned by Validate for records that break the data
// model invariants.
var ErrInvalidRecord = errors.New("invalid session record")

// Validate checks the record invariants: score in [0, 7], non-negative
// duration and assistant interactions, non-empty entity and exercise, and a
// plausible timestamp.
func (r SessionRecord) Validate() error {
	switch {
	case r.EntityID == "":
		return fmt.Errorf("%w: missing entity_id", ErrInvalidRecord)
	case r.ExerciseLabel == "":
		return fmt.Errorf("%w: entity %s: missing exercise_label", ErrInvalidRecord, r.EntityID)
	case r.Score < 0 || r.Score > MaxScore || r.Score != r.Score:
		return fmt.Errorf("%w: entity %s: score %v outside [0, %.0f]", ErrInvalidRecord, r.EntityID, r.Score, MaxScore)
	case r.DurationSeconds < 0:
		return fmt.Errorf("%w: entity %s: negative duration %d", ErrInvalidRecord, r.EntityID, r.DurationSeconds)
	case r.AssistantInteractions < 0:
		return fmt.Errorf("%w: entity %s: negative assistant interactions %d", ErrInvalidRecord, r.EntityID, r.AssistantInteractions)
	case !r.OccurredAt.IsZero() && r.OccurredAt.Before(EarliestOccurredAt):
		return fmt.Errorf("%w: entity %s: occurred_at %s before %s", ErrInvalidRecord, r.EntityID,
			r.OccurredAt.Format(time.RFC3339), EarliestOccurredAt.Format(time.DateOnly))
	case r.OccurredAt.After(time.Now().Add(MaxFutureSkew)):
		return fmt.Errorf("%w: entity %s: occurred_at %s is in the future", ErrInvalidRecord, r.EntityID,
			r.OccurredAt.Format(time.RFC3339))
	}
	return nil
}

// Scope selects which records a fetch returns. An empty CohortID or EntityID
// means "any". Scoping and authorization are the caller's responsibility.
type Scope struct {
	CohortID string `json:"cohort_id,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// String renders the scope for log fields. Empty selectors render as "".
func (s Scope) String() string {
	return fmt.Sprintf("cohort=%q entity=%q", s.CohortID, s.EntityID)
}

// Fetcher loads the records for a scope. Implementations own persistence;
// the analytics pipeline only reads what they return.
type Fetcher interface {
	Fetch(ctx context.Context, scope Scope) ([]SessionRecord, error)
}

// SliceFetcher is an in-memory Fetcher over a fixed record slice.
type SliceFetcher []SessionRecord

// Fetch returns the records matching scope in their original order.
func (f SliceFetcher) Fetch(_ context.Context, scope Scope) ([]SessionRecord, error) {
	var out []SessionRecord
	for _, r := range f {
		if scope.CohortID != "" && r.CohortID != scope.CohortID {
			continue
		}
		if scope.EntityID != "" && r.EntityID != scope.EntityID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
