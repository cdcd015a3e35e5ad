package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/service/dispatch"
)

// ManualQueueRepository is the persistent requires-manual-intervention queue.
// Items land here only when every channel and the advocate path failed; an
// operator works the queue and marks entries handled.
type ManualQueueRepository struct {
	db *pgxpool.Pool
}

// NewManualQueueRepository creates a Postgres manual queue
func NewManualQueueRepository(db *pgxpool.Pool) *ManualQueueRepository {
	return &ManualQueueRepository{db: db}
}

// Enqueue persists a dispatch item for manual handling
func (r *ManualQueueRepository) Enqueue(ctx context.Context, item *dispatch.Item) error {
	resultsJSON, err := json.Marshal(item.Results)
	if err != nil {
		return errors.NewInternalError("failed to marshal channel results").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO manual_interventions (id, kind, subject_id, alert_id, level, message, results, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, string(item.Kind), item.SubjectID, item.AlertID, string(item.Level),
		item.Message, resultsJSON, time.Now().UTC())
	if err != nil {
		return errors.NewInternalError("failed to enqueue manual intervention").WithCause(err)
	}
	return nil
}

// CountOpen returns the number of entries still waiting for an operator
func (r *ManualQueueRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM manual_interventions WHERE handled_at IS NULL
	`).Scan(&count)
	if err != nil {
		return 0, errors.NewInternalError("failed to count open interventions").WithCause(err)
	}
	return count, nil
}

// MarkHandled records that an operator dealt with the entry
func (r *ManualQueueRepository) MarkHandled(ctx context.Context, itemID string, note string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE manual_interventions
		SET handled_at = $2, handled_note = $3
		WHERE id = $1 AND handled_at IS NULL
	`, itemID, time.Now().UTC(), note)
	if err != nil {
		return errors.NewInternalError("failed to mark intervention handled").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("manual intervention")
	}
	return nil
}
