package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/metrics"
	"go.uber.org/zap"
)

// Config bounds channel attempts and retry pacing
type Config struct {
	ChannelTimeout     time.Duration
	CriticalSMSRepeats int
	SMSSpacing         time.Duration
	ManualRetryBackoff time.Duration
}

// DefaultConfig returns the documented dispatch policy
func DefaultConfig() Config {
	return Config{
		ChannelTimeout:     10 * time.Second,
		CriticalSMSRepeats: 3,
		SMSSpacing:         2 * time.Second,
		ManualRetryBackoff: 5 * time.Second,
	}
}

type service struct {
	sms       SMSSender
	calls     CallPlacer
	push      PushSender
	local     LocalNotifier
	advocate  AdvocateNotifier
	manual    ManualQueue
	contacts  ContactDirectory
	conn      StateProvider
	auditLog  audit.Store
	cfg       Config
	metrics   *metrics.DispatchMetrics
	logger    *zap.Logger
	shutdown  chan struct{}
}

// Deps bundles the dispatcher's collaborators
type Deps struct {
	SMS      SMSSender
	Calls    CallPlacer
	Push     PushSender
	Local    LocalNotifier
	Advocate AdvocateNotifier
	Manual   ManualQueue
	Contacts ContactDirectory
	Conn     StateProvider
	AuditLog audit.Store
	Metrics  *metrics.DispatchMetrics
	Logger   *zap.Logger
}

// NewService creates an escalation dispatcher
func NewService(deps Deps, cfg Config) Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		sms:      deps.SMS,
		calls:    deps.Calls,
		push:     deps.Push,
		local:    deps.Local,
		advocate: deps.Advocate,
		manual:   deps.Manual,
		contacts: deps.Contacts,
		conn:     deps.Conn,
		auditLog: deps.AuditLog,
		cfg:      cfg,
		metrics:  deps.Metrics,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

func (s *service) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

// DispatchAlert runs the channel table for an alert
func (s *service) DispatchAlert(ctx context.Context, a *alert.Alert) error {
	if a == nil {
		return errors.NewValidationError("MISSING_ALERT", "alert is required")
	}
	item := ItemFromAlert(a)
	_, err := s.dispatch(ctx, item)
	return err
}

// DispatchEmergency runs the channel table for an SOS request and returns
// the per-channel outcomes
func (s *service) DispatchEmergency(ctx context.Context, req *emergency.Request) ([]emergency.ChannelResult, error) {
	if req == nil {
		return nil, errors.NewValidationError("MISSING_REQUEST", "emergency request is required")
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryEmergencyRequest, map[string]interface{}{
		"request_id": req.ID.String(),
		"subject_id": req.SubjectID.String(),
		"category":   string(req.Category),
		"priority":   string(req.Priority),
	}); err != nil {
		return nil, err
	}

	item := ItemFromEmergency(req)
	return s.dispatch(ctx, item)
}

// dispatch walks the channel plan for the item. A critical item already
// started must run to completion: it proceeds on a context detached from
// the caller's cancellation.
func (s *service) dispatch(ctx context.Context, item *Item) ([]emergency.ChannelResult, error) {
	if item.Critical {
		ctx = context.WithoutCancel(ctx)
	}

	if err := item.Transition(StateAttempting); err != nil {
		return nil, errors.NewInternalError("dispatch item in unexpected state").WithCause(err)
	}

	state := s.conn.Current()
	recipients, err := s.contacts.EmergencyRecipients(ctx, item.SubjectID)
	if err != nil {
		s.logger.Error("failed to resolve recipients",
			zap.String("item_id", item.ID.String()), zap.Error(err))
		recipients = nil
	}

	// Local notification first: always attempted, cannot fail.
	s.local.ShowLocalNotification("ElderShield alert", item.Message)
	s.record(ctx, item, emergency.NewChannelResult(emergency.ChannelLocal, true, "shown on device"))

	for _, ch := range channelPlan(item, state) {
		s.attempt(ctx, item, ch, recipients)
	}

	if item.RemoteSuccess() {
		if err := item.Transition(StateDelivered); err != nil {
			return item.Results, err
		}
		s.countItem(item)
		s.logger.Info("dispatch delivered",
			zap.String("item_id", item.ID.String()),
			zap.String("level", string(item.Level)),
			zap.Int("attempts", len(item.Results)))
		return item.Results, nil
	}

	if err := item.Transition(StateAllFailed); err != nil {
		return item.Results, err
	}

	if !item.Critical {
		s.countItem(item)
		s.logger.Warn("all remote channels failed",
			zap.String("item_id", item.ID.String()),
			zap.String("level", string(item.Level)))
		return item.Results, errors.NewAllChannelsError(item.ID.String())
	}

	return item.Results, s.escalate(ctx, item)
}

// escalate raises the advocate path for a critical item whose channels all
// failed, then falls back to the manual intervention queue
func (s *service) escalate(ctx context.Context, item *Item) error {
	if s.metrics != nil {
		s.metrics.AdvocateEscalations.Inc()
	}

	advErr := s.advocate.NotifyAdvocate(ctx, item.SubjectID, item.AlertID, item.Message, emergency.UrgencyImmediate)

	if _, err := s.auditLog.Append(ctx, audit.CategoryAdvocateEscalate, map[string]interface{}{
		"item_id":    item.ID.String(),
		"subject_id": item.SubjectID.String(),
		"urgency":    string(emergency.UrgencyImmediate),
		"success":    advErr == nil,
	}); err != nil {
		return err
	}

	if advErr == nil {
		if err := item.Transition(StateAdvocateNotified); err != nil {
			return err
		}
		s.countItem(item)
		s.logger.Warn("escalated to elder rights advocate",
			zap.String("item_id", item.ID.String()))
		return nil
	}

	s.logger.Error("advocate escalation failed, queueing for manual intervention",
		zap.String("item_id", item.ID.String()), zap.Error(advErr))

	if err := s.queueManual(ctx, item); err != nil {
		return err
	}
	if err := item.Transition(StateManualQueued); err != nil {
		return err
	}
	s.countItem(item)
	return nil
}

// queueManual writes the item to the manual intervention queue, retrying
// until the write succeeds, the context ends, or the process shuts down.
// The write is never dropped silently.
func (s *service) queueManual(ctx context.Context, item *Item) error {
	for {
		err := s.manual.Enqueue(ctx, item)
		if err == nil {
			if s.metrics != nil {
				s.metrics.ManualQueued.Inc()
			}
			_, auditErr := s.auditLog.Append(ctx, audit.CategoryManualQueued, map[string]interface{}{
				"item_id":    item.ID.String(),
				"subject_id": item.SubjectID.String(),
				"level":      string(item.Level),
			})
			return auditErr
		}

		s.logger.Error("manual queue write failed, retrying",
			zap.String("item_id", item.ID.String()), zap.Error(err))

		select {
		case <-ctx.Done():
			return errors.NewInternalError("manual queue write abandoned").WithCause(ctx.Err())
		case <-s.shutdown:
			return errors.NewInternalError("manual queue write abandoned at shutdown").WithCause(err)
		case <-time.After(s.cfg.ManualRetryBackoff):
		}
	}
}

// channelAttempt is one planned entry in the channel table
type channelAttempt struct {
	kind    emergency.ChannelKind
	repeats int
	spacing time.Duration
}

// channelPlan applies the selection table for the item's level against the
// current connection state. Local notification is handled by the caller and
// never appears in the plan.
func channelPlan(item *Item, state connectivity.State) []channelAttempt {
	connected := state.Tier == connectivity.TierConnected
	reachable := state.Tier != connectivity.TierDisconnected

	var plan []channelAttempt
	switch {
	case item.Level == risk.LevelCritical || (item.Kind == KindEmergency && item.Critical):
		// SMS repeat count for CRITICAL is applied at attempt time from config
		plan = append(plan, channelAttempt{kind: emergency.ChannelSMS, repeats: 1})
		if reachable {
			plan = append(plan, channelAttempt{kind: emergency.ChannelCall, repeats: 1})
		}
		if connected {
			plan = append(plan, channelAttempt{kind: emergency.ChannelPush, repeats: 1})
		}
	case item.Level == risk.LevelHigh:
		plan = append(plan, channelAttempt{kind: emergency.ChannelSMS, repeats: 1})
		if connected {
			plan = append(plan, channelAttempt{kind: emergency.ChannelPush, repeats: 1})
		}
	case item.Level == risk.LevelMedium:
		if connected {
			plan = append(plan, channelAttempt{kind: emergency.ChannelPush, repeats: 1})
		} else {
			plan = append(plan, channelAttempt{kind: emergency.ChannelSMS, repeats: 1})
		}
	default:
		if connected {
			plan = append(plan, channelAttempt{kind: emergency.ChannelPush, repeats: 1})
		}
	}
	return plan
}

// attempt runs one planned channel, time-bounded per try. A failure is
// recorded and the next channel still proceeds.
func (s *service) attempt(ctx context.Context, item *Item, ch channelAttempt, recipients []Recipient) {
	repeats := ch.repeats
	spacing := ch.spacing
	if ch.kind == emergency.ChannelSMS && item.Level == risk.LevelCritical {
		repeats = s.cfg.CriticalSMSRepeats
		spacing = s.cfg.SMSSpacing
	}
	if repeats < 1 {
		repeats = 1
	}

	for i := 0; i < repeats; i++ {
		if i > 0 && spacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(spacing):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
		err := s.send(attemptCtx, ch.kind, item, recipients)
		cancel()

		success := err == nil
		message := fmt.Sprintf("%s attempt %d/%d succeeded", ch.kind, i+1, repeats)
		if !success {
			message = fmt.Sprintf("%s attempt %d/%d failed: %v", ch.kind, i+1, repeats, err)
		}
		s.record(ctx, item, emergency.NewChannelResult(ch.kind, success, message))
	}
}

// send fans one channel out to every recipient; the channel succeeds when
// any recipient accepted
func (s *service) send(ctx context.Context, kind emergency.ChannelKind, item *Item, recipients []Recipient) error {
	if len(recipients) == 0 {
		return errors.NewTransportError(string(kind), "no recipients configured")
	}

	var lastErr error
	delivered := false
	for _, r := range recipients {
		var err error
		switch kind {
		case emergency.ChannelSMS:
			err = s.sms.SendSMS(ctx, r.Number, item.Message)
		case emergency.ChannelCall:
			err = s.calls.PlaceCall(ctx, r.Number)
		case emergency.ChannelPush:
			err = s.push.SendPush(ctx, r.PushTarget, "ElderShield alert", item.Message)
		default:
			err = errors.NewTransportError(string(kind), "unsupported channel")
		}
		if err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}

	if !delivered {
		return errors.NewTransportError(string(kind), "no recipient reachable").WithCause(lastErr)
	}
	return nil
}

// record appends the outcome to the item and audits the attempt
func (s *service) record(ctx context.Context, item *Item, result emergency.ChannelResult) {
	item.Record(result)

	if s.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		s.metrics.ChannelAttempts.WithLabelValues(string(result.Channel), outcome).Inc()
	}

	if _, err := s.auditLog.Append(ctx, audit.CategoryChannelAttempt, map[string]interface{}{
		"item_id": item.ID.String(),
		"channel": string(result.Channel),
		"success": result.Success,
		"message": result.Message,
	}); err != nil {
		s.logger.Error("failed to audit channel attempt",
			zap.String("item_id", item.ID.String()), zap.Error(err))
	}
}

func (s *service) countItem(item *Item) {
	if s.metrics != nil {
		s.metrics.ItemsDispatched.WithLabelValues(string(item.State)).Inc()
	}
}
