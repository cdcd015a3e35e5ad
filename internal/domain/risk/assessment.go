package risk

import (
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// Window bounds the behavior-event look-back an assessment was computed over
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Assessment is one scoring run's output for a (caregiver, subject) pair.
// Invariant: TotalScore is the exact sum of factor scores, no hidden adjustments.
type Assessment struct {
	ID          uuid.UUID `json:"id"`
	CaregiverID uuid.UUID `json:"caregiver_id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	Factors     []Factor  `json:"factors"`
	TotalScore  int       `json:"total_score"`
	Level       Level     `json:"level"`
	Window      Window    `json:"window"`
	AssessedAt  time.Time `json:"assessed_at"`
}

// NewAssessment builds an assessment from the factors of one scoring run.
// The total and level are derived here and nowhere else.
func NewAssessment(caregiverID, subjectID uuid.UUID, factors []Factor, window Window, assessedAt time.Time) (*Assessment, error) {
	if caregiverID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_CAREGIVER_ID", "caregiver ID is required")
	}
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	if window.End.Before(window.Start) {
		return nil, errors.NewValidationError("INVALID_WINDOW", "window end precedes start")
	}

	total := 0
	for _, f := range factors {
		total += f.Score
	}

	return &Assessment{
		ID:          uuid.New(),
		CaregiverID: caregiverID,
		SubjectID:   subjectID,
		Factors:     factors,
		TotalScore:  total,
		Level:       LevelFromScore(total),
		Window:      window,
		AssessedAt:  assessedAt.UTC(),
	}, nil
}

// Validate re-checks the sum and level invariants, used when loading
// persisted assessments
func (a *Assessment) Validate() error {
	sum := 0
	for _, f := range a.Factors {
		sum += f.Score
	}
	if sum != a.TotalScore {
		return errors.NewValidationError("SCORE_MISMATCH", "total score is not the sum of factor scores")
	}
	if LevelFromScore(a.TotalScore) != a.Level {
		return errors.NewValidationError("LEVEL_MISMATCH", "level does not match total score")
	}
	return nil
}

// HasFactor reports whether a factor of the given type fired
func (a *Assessment) HasFactor(t FactorType) bool {
	for _, f := range a.Factors {
		if f.Type == t {
			return true
		}
	}
	return false
}
