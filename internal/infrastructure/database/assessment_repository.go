package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
)

// AssessmentRepository persists risk assessments keyed by
// (caregiver, subject, assessed_at)
type AssessmentRepository struct {
	db *pgxpool.Pool
}

// NewAssessmentRepository creates a Postgres assessment repository
func NewAssessmentRepository(db *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Save inserts an assessment with its factor list as JSONB
func (r *AssessmentRepository) Save(ctx context.Context, a *risk.Assessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return errors.NewInternalError("failed to marshal factors").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO risk_assessments (id, caregiver_id, subject_id, factors, total_score, level, window_start, window_end, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.CaregiverID, a.SubjectID, factorsJSON, a.TotalScore, string(a.Level),
		a.Window.Start, a.Window.End, a.AssessedAt)
	if err != nil {
		return errors.NewInternalError("failed to store assessment").WithCause(err)
	}
	return nil
}

// Recent returns up to limit assessments for the pair, most recent first.
// Loaded assessments are revalidated: a tampered row fails the sum or level
// invariant instead of silently feeding the trend rule.
func (r *AssessmentRepository) Recent(ctx context.Context, caregiverID, subjectID uuid.UUID, limit int) ([]*risk.Assessment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, caregiver_id, subject_id, factors, total_score, level, window_start, window_end, assessed_at
		FROM risk_assessments
		WHERE caregiver_id = $1 AND subject_id = $2
		ORDER BY assessed_at DESC
		LIMIT $3
	`, caregiverID, subjectID, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to query assessments").WithCause(err)
	}
	defer rows.Close()

	var assessments []*risk.Assessment
	for rows.Next() {
		var (
			a           risk.Assessment
			level       string
			factorsJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.CaregiverID, &a.SubjectID, &factorsJSON, &a.TotalScore,
			&level, &a.Window.Start, &a.Window.End, &a.AssessedAt); err != nil {
			return nil, errors.NewInternalError("failed to scan assessment").WithCause(err)
		}
		a.Level = risk.Level(level)
		if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal factors").WithCause(err)
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		assessments = append(assessments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate assessments").WithCause(err)
	}
	return assessments, nil
}
