package emergency

import "time"

// ChannelKind names a delivery channel
type ChannelKind string

const (
	ChannelCall     ChannelKind = "call"
	ChannelSMS      ChannelKind = "sms"
	ChannelPush     ChannelKind = "push"
	ChannelLocal    ChannelKind = "local_notification"
	ChannelAdvocate ChannelKind = "elder_rights_advocate"
)

// Urgency carried on the advocate escalation path
type Urgency string

const (
	UrgencyRoutine   Urgency = "ROUTINE"
	UrgencyElevated  Urgency = "ELEVATED"
	UrgencyImmediate Urgency = "IMMEDIATE"
)

// ChannelResult is one channel attempt's outcome. Write-once: appended to the
// item's outcome list and never mutated.
type ChannelResult struct {
	Channel   ChannelKind `json:"channel"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewChannelResult records one attempt outcome
func NewChannelResult(channel ChannelKind, success bool, message string) ChannelResult {
	return ChannelResult{
		Channel:   channel,
		Success:   success,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
