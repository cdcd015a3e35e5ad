package emergency

import (
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// Category classifies the emergency reported by the SOS path
type Category string

const (
	CategoryMedical Category = "medical"
	CategoryFall    Category = "fall"
	CategoryPanic   Category = "panic"
	CategoryAbuse   Category = "abuse"
	CategoryGeneral Category = "general"
)

// Priority orders dispatch urgency
type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityImmediate Priority = "immediate"
)

// Location is an optional device position attached to a request
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy_m,omitempty"`
}

// Request is an SOS activation consumed by the escalation dispatcher
type Request struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	Category      Category  `json:"category"`
	Language      string    `json:"language"`
	TriggerSource string    `json:"trigger_source"`
	Location      *Location `json:"location,omitempty"`
	Priority      Priority  `json:"priority"`
	RequestedAt   time.Time `json:"requested_at"`
}

// NewRequest creates an emergency request. Priority is derived from the
// category and the subject's known risk context, not supplied by the caller.
func NewRequest(subjectID uuid.UUID, category Category, language, triggerSource string, location *Location, subjectRisk risk.Level) (*Request, error) {
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject ID is required")
	}
	if !isValidCategory(category) {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "unknown emergency category")
	}
	if language == "" {
		language = "en"
	}

	return &Request{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		Category:      category,
		Language:      language,
		TriggerSource: triggerSource,
		Location:      location,
		Priority:      DerivePriority(category, subjectRisk),
		RequestedAt:   time.Now().UTC(),
	}, nil
}

// DerivePriority folds the subject's risk context into the category's
// baseline urgency. A subject already assessed at HIGH or CRITICAL risk
// never gets less than immediate handling.
func DerivePriority(category Category, subjectRisk risk.Level) Priority {
	if subjectRisk.AtLeast(risk.LevelHigh) {
		return PriorityImmediate
	}

	switch category {
	case CategoryMedical, CategoryFall, CategoryPanic:
		return PriorityImmediate
	case CategoryAbuse:
		return PriorityUrgent
	default:
		return PriorityRoutine
	}
}

func isValidCategory(c Category) bool {
	switch c {
	case CategoryMedical, CategoryFall, CategoryPanic, CategoryAbuse, CategoryGeneral:
		return true
	}
	return false
}
