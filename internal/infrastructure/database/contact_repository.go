package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/service/dispatch"
)

// ContactRepository stores a subject's emergency contacts. Protected
// contacts are the ones the platform refuses to let a caregiver remove.
type ContactRepository struct {
	db *pgxpool.Pool
}

// NewContactRepository creates a Postgres contact repository
func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// Contact is one stored emergency contact
type Contact struct {
	ID         uuid.UUID
	SubjectID  uuid.UUID
	Name       string
	Number     string
	PushTarget string
	Protected  bool
	CreatedAt  time.Time
}

// Add registers an emergency contact for a subject
func (r *ContactRepository) Add(ctx context.Context, c *Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO emergency_contacts (id, subject_id, name, number, push_target, protected, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.SubjectID, c.Name, c.Number, c.PushTarget, c.Protected, c.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to store emergency contact").WithCause(err)
	}
	return nil
}

// EmergencyRecipients returns the subject's deliverable contacts, protected
// contacts first
func (r *ContactRepository) EmergencyRecipients(ctx context.Context, subjectID uuid.UUID) ([]dispatch.Recipient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT name, number, push_target
		FROM emergency_contacts
		WHERE subject_id = $1
		ORDER BY protected DESC, created_at
	`, subjectID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query emergency contacts").WithCause(err)
	}
	defer rows.Close()

	var recipients []dispatch.Recipient
	for rows.Next() {
		var rec dispatch.Recipient
		if err := rows.Scan(&rec.Name, &rec.Number, &rec.PushTarget); err != nil {
			return nil, errors.NewInternalError("failed to scan emergency contact").WithCause(err)
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate emergency contacts").WithCause(err)
	}
	return recipients, nil
}

// IsProtected reports whether the number belongs to a protected contact of
// the subject
func (r *ContactRepository) IsProtected(ctx context.Context, subjectID uuid.UUID, number string) (bool, error) {
	var protected bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM emergency_contacts
			WHERE subject_id = $1 AND number = $2 AND protected
		)
	`, subjectID, number).Scan(&protected)
	if err != nil {
		return false, errors.NewInternalError("failed to check protected contact").WithCause(err)
	}
	return protected, nil
}
