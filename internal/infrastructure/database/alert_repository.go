package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
)

// AlertRepository persists alerts in Postgres. Alerts are never deleted.
type AlertRepository struct {
	db *pgxpool.Pool
}

// NewAlertRepository creates a Postgres alert repository
func NewAlertRepository(db *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Save(ctx context.Context, a *alert.Alert) error {
	actionsJSON, err := json.Marshal(a.RecommendedActions)
	if err != nil {
		return errors.NewInternalError("failed to marshal recommended actions").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO alerts (id, subject_id, caregiver_id, assessment_id, level, message,
			recommended_actions, requires_immediate_action, status, resolution_note, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.SubjectID, a.CaregiverID, a.AssessmentID, string(a.Level), a.Message,
		actionsJSON, a.RequiresImmediateAction, string(a.Status), a.ResolutionNote, a.ResolvedAt, a.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to store alert").WithCause(err)
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, subject_id, caregiver_id, assessment_id, level, message,
			recommended_actions, requires_immediate_action, status, resolution_note, resolved_at, created_at
		FROM alerts WHERE id = $1
	`, id)

	a, err := scanAlert(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load alert").WithCause(err)
	}
	return a, nil
}

func (r *AlertRepository) Update(ctx context.Context, a *alert.Alert) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE alerts
		SET status = $2, resolution_note = $3, resolved_at = $4
		WHERE id = $1
	`, a.ID, string(a.Status), a.ResolutionNote, a.ResolvedAt)
	if err != nil {
		return errors.NewInternalError("failed to update alert").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) ListActive(ctx context.Context, subjectID uuid.UUID) ([]*alert.Alert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subject_id, caregiver_id, assessment_id, level, message,
			recommended_actions, requires_immediate_action, status, resolution_note, resolved_at, created_at
		FROM alerts
		WHERE subject_id = $1 AND status != 'resolved'
		ORDER BY created_at DESC
	`, subjectID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list alerts").WithCause(err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan alert").WithCause(err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate alerts").WithCause(err)
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a           alert.Alert
		level       string
		status      string
		actionsJSON []byte
	)
	err := row.Scan(&a.ID, &a.SubjectID, &a.CaregiverID, &a.AssessmentID, &level, &a.Message,
		&actionsJSON, &a.RequiresImmediateAction, &status, &a.ResolutionNote, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Level = risk.Level(level)
	a.Status = alert.Status(status)
	if err := json.Unmarshal(actionsJSON, &a.RecommendedActions); err != nil {
		return nil, err
	}
	return &a, nil
}
