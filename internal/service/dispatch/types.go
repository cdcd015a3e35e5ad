package dispatch

import (
	"fmt"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/google/uuid"
)

// ItemKind distinguishes what a dispatch item carries
type ItemKind string

const (
	KindAlert     ItemKind = "alert"
	KindEmergency ItemKind = "emergency"
)

// ItemState is the explicit per-item state machine. The all-channels-failed
// transition to the advocate path is a single state change, not a branch
// buried in send logic.
type ItemState string

const (
	StatePending          ItemState = "pending"
	StateAttempting       ItemState = "attempting"
	StateDelivered        ItemState = "delivered"
	StateAllFailed        ItemState = "all_failed"
	StateAdvocateNotified ItemState = "advocate_notified"
	StateManualQueued     ItemState = "manual_queued"
)

var validTransitions = map[ItemState][]ItemState{
	StatePending:    {StateAttempting},
	StateAttempting: {StateDelivered, StateAllFailed},
	StateAllFailed:  {StateAdvocateNotified, StateManualQueued},
}

// Item is one unit of multi-channel delivery work
type Item struct {
	ID        uuid.UUID                 `json:"id"`
	Kind      ItemKind                  `json:"kind"`
	SubjectID uuid.UUID                 `json:"subject_id"`
	AlertID   uuid.UUID                 `json:"alert_id,omitempty"`
	Level     risk.Level                `json:"level"`
	Critical  bool                      `json:"critical"`
	Message   string                    `json:"message"`
	Language  string                    `json:"language,omitempty"`
	State     ItemState                 `json:"state"`
	Results   []emergency.ChannelResult `json:"results"`
	CreatedAt time.Time                 `json:"created_at"`
}

// ItemFromAlert builds a dispatch item from an alert
func ItemFromAlert(a *alert.Alert) *Item {
	return &Item{
		ID:        uuid.New(),
		Kind:      KindAlert,
		SubjectID: a.SubjectID,
		AlertID:   a.ID,
		Level:     a.Level,
		Critical:  a.Level == risk.LevelCritical || a.RequiresImmediateAction,
		Message:   a.Message,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

// ItemFromEmergency builds a dispatch item from an SOS request. Emergencies
// ride the CRITICAL channel table regardless of derived priority; priority
// only softens below-immediate requests down to the HIGH table.
func ItemFromEmergency(req *emergency.Request) *Item {
	level := risk.LevelCritical
	critical := true
	if req.Priority != emergency.PriorityImmediate {
		level = risk.LevelHigh
		critical = req.Priority == emergency.PriorityUrgent
	}
	return &Item{
		ID:        uuid.New(),
		Kind:      KindEmergency,
		SubjectID: req.SubjectID,
		Level:     level,
		Critical:  critical,
		Message:   fmt.Sprintf("emergency (%s) reported via %s", req.Category, req.TriggerSource),
		Language:  req.Language,
		State:     StatePending,
		CreatedAt: req.RequestedAt,
	}
}

// Transition moves the item to the next state, enforcing the machine
func (i *Item) Transition(next ItemState) error {
	for _, allowed := range validTransitions[i.State] {
		if allowed == next {
			i.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid dispatch state transition %s -> %s", i.State, next)
}

// Record appends a channel outcome. Results are write-once.
func (i *Item) Record(result emergency.ChannelResult) {
	i.Results = append(i.Results, result)
}

// RemoteSuccess reports whether any fallible channel delivered. Local
// notification is defined infallible and does not count.
func (i *Item) RemoteSuccess() bool {
	for _, r := range i.Results {
		if r.Channel != emergency.ChannelLocal && r.Success {
			return true
		}
	}
	return false
}
