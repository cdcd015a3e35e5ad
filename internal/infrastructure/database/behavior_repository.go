package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
)

// BehaviorRepository persists behavior events in Postgres
type BehaviorRepository struct {
	db *pgxpool.Pool
}

// NewBehaviorRepository creates a Postgres behavior event repository
func NewBehaviorRepository(db *pgxpool.Pool) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// Save inserts a behavior event. Events are write-once: there is no update.
func (r *BehaviorRepository) Save(ctx context.Context, e *behavior.Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return errors.NewInternalError("failed to marshal event payload").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO behavior_events (id, caregiver_id, subject_id, category, outcome, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.CaregiverID, e.SubjectID, string(e.Category), string(e.Outcome), payloadJSON, e.OccurredAt)
	if err != nil {
		return errors.NewInternalError("failed to store behavior event").WithCause(err)
	}
	return nil
}

// ListWindow returns the pair's events inside the window, oldest first
func (r *BehaviorRepository) ListWindow(ctx context.Context, caregiverID, subjectID uuid.UUID, window risk.Window) ([]*behavior.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, caregiver_id, subject_id, category, outcome, payload, occurred_at
		FROM behavior_events
		WHERE caregiver_id = $1 AND subject_id = $2
		  AND occurred_at >= $3 AND occurred_at <= $4
		ORDER BY occurred_at
	`, caregiverID, subjectID, window.Start, window.End)
	if err != nil {
		return nil, errors.NewInternalError("failed to query behavior window").WithCause(err)
	}
	defer rows.Close()

	var events []*behavior.Event
	for rows.Next() {
		var (
			e           behavior.Event
			category    string
			outcome     string
			payloadJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.CaregiverID, &e.SubjectID, &category, &outcome, &payloadJSON, &e.OccurredAt); err != nil {
			return nil, errors.NewInternalError("failed to scan behavior event").WithCause(err)
		}
		e.Category = behavior.Category(category)
		e.Outcome = behavior.Outcome(outcome)
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal event payload").WithCause(err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate behavior events").WithCause(err)
	}
	return events, nil
}
