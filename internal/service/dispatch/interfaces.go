package dispatch

import (
	"context"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/google/uuid"
)

// Service delivers alerts and emergencies through the channel table
type Service interface {
	DispatchAlert(ctx context.Context, a *alert.Alert) error
	DispatchEmergency(ctx context.Context, req *emergency.Request) ([]emergency.ChannelResult, error)

	// Shutdown stops manual-queue retry loops. In-flight critical dispatch
	// still runs to completion.
	Shutdown()
}

// Transport interfaces are thin wrappers over the platform's send
// primitives. Their implementations live outside the engine.

type SMSSender interface {
	SendSMS(ctx context.Context, number, text string) error
}

type CallPlacer interface {
	PlaceCall(ctx context.Context, number string) error
}

type PushSender interface {
	SendPush(ctx context.Context, target, title, body string) error
}

// LocalNotifier shows an on-device notification. Infallible: it needs no
// connectivity and returns nothing.
type LocalNotifier interface {
	ShowLocalNotification(title, body string)
}

// AdvocateNotifier is the secondary escalation path to a different recipient
type AdvocateNotifier interface {
	NotifyAdvocate(ctx context.Context, subjectID, alertID uuid.UUID, message string, urgency emergency.Urgency) error
}

// ManualQueue persists items no channel could deliver
type ManualQueue interface {
	Enqueue(ctx context.Context, item *Item) error
}

// StateProvider exposes the coordinator's connection snapshot
type StateProvider interface {
	Current() connectivity.State
}

// Recipient is one deliverable endpoint for a subject's alerts
type Recipient struct {
	Name       string
	Number     string
	PushTarget string
}

// ContactDirectory resolves a subject's notification recipients. Contact
// storage is outside the engine.
type ContactDirectory interface {
	EmergencyRecipients(ctx context.Context, subjectID uuid.UUID) ([]Recipient, error)
}
