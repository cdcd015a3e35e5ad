package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/google/uuid"
)

// Category classifies audit records. The audit log is the system of record:
// every state transition in scoring, alerting and dispatch lands here before
// it is considered complete.
type Category string

const (
	CategoryEventIngested    Category = "behavior.event_ingested"
	CategoryEventRejected    Category = "behavior.event_rejected"
	CategoryFactorComputed   Category = "risk.factor_computed"
	CategoryAssessment       Category = "risk.assessment_completed"
	CategoryAlertCreated     Category = "alert.created"
	CategoryAlertResolved    Category = "alert.resolved"
	CategoryChannelAttempt   Category = "dispatch.channel_attempted"
	CategoryAdvocateEscalate Category = "dispatch.advocate_escalated"
	CategoryManualQueued     Category = "dispatch.manual_queued"
	CategoryEmergencyRequest Category = "emergency.requested"
	CategoryNetworkState     Category = "connectivity.state_changed"
	CategoryHeartbeatMissed  Category = "connectivity.heartbeat_missed"
	CategoryIntegrityCheck   Category = "audit.integrity_checked"
)

// Event is one tamper-evident audit record. Append-only and write-once:
// Hash = SHA-256(previous_hash ‖ category ‖ canonical details ‖ timestamp),
// so any retroactive edit is detectable by recomputing the chain.
type Event struct {
	ID           uuid.UUID              `json:"id"`
	Sequence     int64                  `json:"sequence"`
	Category     Category               `json:"category"`
	Details      map[string]interface{} `json:"details"`
	Timestamp    time.Time              `json:"timestamp"`
	PreviousHash string                 `json:"previous_hash"`
	Hash         string                 `json:"hash"`

	sealed bool
}

// NewEvent creates an unsealed audit event. The store assigns the sequence
// number and seals it against the chain tail under its single-writer lock.
func NewEvent(category Category, details map[string]interface{}) (*Event, error) {
	if category == "" {
		return nil, errors.NewValidationError("MISSING_CATEGORY", "audit category is required")
	}
	if details == nil {
		details = make(map[string]interface{})
	}

	now := time.Now().UTC()
	return &Event{
		ID:        uuid.New(),
		Category:  category,
		Details:   details,
		Timestamp: now,
	}, nil
}

// Seal computes the chained hash against the previous event's hash and marks
// the record immutable. Must only be called under the store's append lock.
func (e *Event) Seal(sequence int64, previousHash string) error {
	if e.sealed {
		return errors.NewConflictError("EVENT_SEALED", "audit event is already sealed")
	}

	e.Sequence = sequence
	e.PreviousHash = previousHash

	hash, err := computeHash(previousHash, e.Category, e.Details, e.Timestamp)
	if err != nil {
		return err
	}
	e.Hash = hash
	e.sealed = true
	return nil
}

// Sealed reports whether the event has been chained
func (e *Event) Sealed() bool {
	return e.sealed
}

// Recompute returns the hash the event's own fields produce against the given
// previous hash. Used by integrity verification; does not mutate the event.
func (e *Event) Recompute(previousHash string) (string, error) {
	return computeHash(previousHash, e.Category, e.Details, e.Timestamp)
}

func computeHash(previousHash string, category Category, details map[string]interface{}, ts time.Time) (string, error) {
	// encoding/json sorts map keys, giving a canonical details representation
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", errors.NewInternalError("failed to marshal audit details").WithCause(err)
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write(detailsJSON)
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(ts.UnixNano(), 10)))

	return hex.EncodeToString(h.Sum(nil)), nil
}
