package database

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/metrics"
)

// appendRetryBackoff paces durable-write retries. Append never gives up on
// its own: it blocks the caller until the write lands or the context ends.
const appendRetryBackoff = 500 * time.Millisecond

// AuditRepository is the Postgres audit store. The hash chain tail is
// single-writer: the in-process mutex serializes read-tail, seal and insert,
// and the transaction keeps the triple atomic against the table.
type AuditRepository struct {
	db      *pgxpool.Pool
	logger  *zap.Logger
	metrics *metrics.AuditMetrics

	mu sync.Mutex
}

// NewAuditRepository creates a Postgres audit repository
func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRepository{db: db, logger: logger}
}

// WithMetrics attaches append counters
func (r *AuditRepository) WithMetrics(m *metrics.AuditMetrics) *AuditRepository {
	r.metrics = m
	return r
}

// Append seals the event against the chain tail and persists it. Retries on
// write failure until durable or the context is done.
func (r *AuditRepository) Append(ctx context.Context, category audit.Category, details map[string]interface{}) (*audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		// Seal is write-once, so every attempt builds a fresh event
		event, err := audit.NewEvent(category, details)
		if err != nil {
			return nil, err
		}

		if err := r.appendOnce(ctx, event); err == nil {
			if r.metrics != nil {
				r.metrics.Appends.WithLabelValues(string(category)).Inc()
			}
			return event, nil
		} else {
			r.logger.Error("audit append failed, retrying", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, errors.NewInternalError("audit append abandoned").WithCause(ctx.Err())
		case <-time.After(appendRetryBackoff):
		}
	}
}

func (r *AuditRepository) appendOnce(ctx context.Context, event *audit.Event) error {
	return pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var (
			tailSequence int64
			tailHash     string
		)
		err := tx.QueryRow(ctx, `
			SELECT sequence, hash FROM audit_events
			ORDER BY sequence DESC LIMIT 1
		`).Scan(&tailSequence, &tailHash)
		if err == pgx.ErrNoRows {
			tailSequence, tailHash = 0, ""
		} else if err != nil {
			return err
		}

		if err := event.Seal(tailSequence+1, tailHash); err != nil {
			return err
		}

		detailsJSON, err := json.Marshal(event.Details)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO audit_events (id, sequence, category, details, timestamp, previous_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, event.ID, event.Sequence, string(event.Category), detailsJSON,
			event.Timestamp, event.PreviousHash, event.Hash)
		return err
	})
}

// VerifyIntegrity loads the full chain in sequence order and recomputes it
func (r *AuditRepository) VerifyIntegrity(ctx context.Context) (*audit.VerificationResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sequence, category, details, timestamp, previous_hash, hash
		FROM audit_events ORDER BY sequence
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to load audit chain").WithCause(err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	return audit.VerifyChain(events), nil
}

// CountSince counts events of the category at or after the timestamp
func (r *AuditRepository) CountSince(ctx context.Context, category audit.Category, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE category = $1 AND timestamp >= $2
	`, string(category), since).Scan(&count)
	if err != nil {
		return 0, errors.NewInternalError("failed to count audit events").WithCause(err)
	}
	return count, nil
}

// ListSince returns events of the category at or after the timestamp in
// sequence order
func (r *AuditRepository) ListSince(ctx context.Context, category audit.Category, since time.Time) ([]*audit.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sequence, category, details, timestamp, previous_hash, hash
		FROM audit_events
		WHERE category = $1 AND timestamp >= $2
		ORDER BY sequence
	`, string(category), since)
	if err != nil {
		return nil, errors.NewInternalError("failed to list audit events").WithCause(err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*audit.Event, error) {
	var events []*audit.Event
	for rows.Next() {
		var (
			e           audit.Event
			category    string
			detailsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &category, &detailsJSON,
			&e.Timestamp, &e.PreviousHash, &e.Hash); err != nil {
			return nil, errors.NewInternalError("failed to scan audit event").WithCause(err)
		}
		e.Category = audit.Category(category)
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal audit details").WithCause(err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate audit events").WithCause(err)
	}
	return events, nil
}
