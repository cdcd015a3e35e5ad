package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/alert"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/domain/emergency"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeSMS) SendSMS(ctx context.Context, number, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.NewTransportError("sms", "carrier rejected")
	}
	return nil
}

type fakeCall struct {
	calls int
	fail  bool
}

func (f *fakeCall) PlaceCall(ctx context.Context, number string) error {
	f.calls++
	if f.fail {
		return errors.NewTransportError("call", "no answer")
	}
	return nil
}

type fakePush struct {
	calls int
	fail  bool
}

func (f *fakePush) SendPush(ctx context.Context, target, title, body string) error {
	f.calls++
	if f.fail {
		return errors.NewTransportError("push", "token expired")
	}
	return nil
}

type fakeLocal struct {
	shown []string
}

func (f *fakeLocal) ShowLocalNotification(title, body string) {
	f.shown = append(f.shown, body)
}

type fakeAdvocate struct {
	calls   int
	urgency emergency.Urgency
	fail    bool
}

func (f *fakeAdvocate) NotifyAdvocate(ctx context.Context, subjectID, alertID uuid.UUID, message string, urgency emergency.Urgency) error {
	f.calls++
	f.urgency = urgency
	if f.fail {
		return errors.NewExternalError("advocate", "unreachable")
	}
	return nil
}

type fakeManual struct {
	mu       sync.Mutex
	items    []*Item
	failures int
}

func (f *fakeManual) Enqueue(ctx context.Context, item *Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.NewInternalError("disk full")
	}
	f.items = append(f.items, item)
	return nil
}

type fixedConn struct {
	tier connectivity.Tier
}

func (f *fixedConn) Current() connectivity.State {
	return connectivity.State{Tier: f.tier, SyncStrategy: connectivity.StrategyFor(f.tier)}
}

type fakeDirectory struct{}

func (fakeDirectory) EmergencyRecipients(ctx context.Context, subjectID uuid.UUID) ([]Recipient, error) {
	return []Recipient{{Name: "daughter", Number: "+15550100", PushTarget: "device-1"}}, nil
}

type harness struct {
	sms      *fakeSMS
	call     *fakeCall
	push     *fakePush
	local    *fakeLocal
	advocate *fakeAdvocate
	manual   *fakeManual
	auditLog *repository.MemoryAuditStore
	svc      Service
}

func newHarness(tier connectivity.Tier) *harness {
	h := &harness{
		sms:      &fakeSMS{},
		call:     &fakeCall{},
		push:     &fakePush{},
		local:    &fakeLocal{},
		advocate: &fakeAdvocate{},
		manual:   &fakeManual{},
		auditLog: repository.NewMemoryAuditStore(),
	}
	h.svc = NewService(Deps{
		SMS:      h.sms,
		Calls:    h.call,
		Push:     h.push,
		Local:    h.local,
		Advocate: h.advocate,
		Manual:   h.manual,
		Contacts: fakeDirectory{},
		Conn:     &fixedConn{tier: tier},
		AuditLog: h.auditLog,
	}, Config{
		ChannelTimeout:     time.Second,
		CriticalSMSRepeats: 3,
		SMSSpacing:         time.Millisecond,
		ManualRetryBackoff: time.Millisecond,
	})
	return h
}

func criticalAlert(t *testing.T) *alert.Alert {
	t.Helper()
	a, err := alert.New(uuid.New(), uuid.New(), uuid.New(), risk.LevelCritical,
		"caregiver behavior assessed at critical risk", []string{"notify elder rights advocate immediately"}, true)
	require.NoError(t, err)
	return a
}

func alertAt(t *testing.T, level risk.Level) *alert.Alert {
	t.Helper()
	a, err := alert.New(uuid.New(), uuid.New(), uuid.New(), level, "risk alert", nil, false)
	require.NoError(t, err)
	return a
}

func TestDispatchAlert_CriticalRunsFullChannelTable(t *testing.T) {
	h := newHarness(connectivity.TierConnected)

	err := h.svc.DispatchAlert(context.Background(), criticalAlert(t))
	require.NoError(t, err)

	assert.Len(t, h.local.shown, 1)
	assert.Equal(t, 3, h.sms.calls)
	assert.Equal(t, 1, h.call.calls)
	assert.Equal(t, 1, h.push.calls)
	assert.Zero(t, h.advocate.calls)
}

func TestDispatchAlert_CriticalAllChannelsFailEscalatesToAdvocate(t *testing.T) {
	h := newHarness(connectivity.TierConnected)
	h.sms.fail = true
	h.call.fail = true
	h.push.fail = true

	err := h.svc.DispatchAlert(context.Background(), criticalAlert(t))
	require.NoError(t, err)

	// local notification still succeeded for the subject
	assert.Len(t, h.local.shown, 1)
	assert.Equal(t, 1, h.advocate.calls)
	assert.Equal(t, emergency.UrgencyImmediate, h.advocate.urgency)

	count, err := h.auditLog.CountSince(context.Background(), audit.CategoryAdvocateEscalate, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatchAlert_AdvocateFailureQueuesManualWithRetry(t *testing.T) {
	h := newHarness(connectivity.TierConnected)
	h.sms.fail = true
	h.call.fail = true
	h.push.fail = true
	h.advocate.fail = true
	h.manual.failures = 2 // first two queue writes fail, third succeeds

	err := h.svc.DispatchAlert(context.Background(), criticalAlert(t))
	require.NoError(t, err)

	require.Len(t, h.manual.items, 1)
	assert.Equal(t, StateManualQueued, h.manual.items[0].State)

	count, err := h.auditLog.CountSince(context.Background(), audit.CategoryManualQueued, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatchEmergency_OfflineStillDeliversBySMS(t *testing.T) {
	h := newHarness(connectivity.TierDisconnected)

	req, err := emergency.NewRequest(uuid.New(), emergency.CategoryFall, "en", "sos_button", nil, risk.LevelMinimal)
	require.NoError(t, err)

	results, err := h.svc.DispatchEmergency(context.Background(), req)
	require.NoError(t, err)

	// disconnected: no call, no push; SMS and local only
	assert.Zero(t, h.call.calls)
	assert.Zero(t, h.push.calls)
	assert.GreaterOrEqual(t, h.sms.calls, 1)

	channels := make(map[emergency.ChannelKind]bool)
	for _, r := range results {
		channels[r.Channel] = true
		assert.True(t, r.Success)
	}
	assert.True(t, channels[emergency.ChannelLocal])
	assert.True(t, channels[emergency.ChannelSMS])
}

func TestDispatchAlert_HighUsesSMSAndPush(t *testing.T) {
	h := newHarness(connectivity.TierConnected)

	err := h.svc.DispatchAlert(context.Background(), alertAt(t, risk.LevelHigh))
	require.NoError(t, err)

	assert.Equal(t, 1, h.sms.calls)
	assert.Equal(t, 1, h.push.calls)
	assert.Zero(t, h.call.calls)
}

func TestDispatchAlert_MediumFallsBackToSMSWhenNotConnected(t *testing.T) {
	h := newHarness(connectivity.TierLimited)

	err := h.svc.DispatchAlert(context.Background(), alertAt(t, risk.LevelMedium))
	require.NoError(t, err)

	assert.Zero(t, h.push.calls)
	assert.Equal(t, 1, h.sms.calls)
}

func TestDispatchAlert_MediumUsesPushWhenConnected(t *testing.T) {
	h := newHarness(connectivity.TierConnected)

	err := h.svc.DispatchAlert(context.Background(), alertAt(t, risk.LevelMedium))
	require.NoError(t, err)

	assert.Equal(t, 1, h.push.calls)
	assert.Zero(t, h.sms.calls)
}

func TestDispatchAlert_NonCriticalAllFailedSurfacesError(t *testing.T) {
	h := newHarness(connectivity.TierConnected)
	h.push.fail = true
	h.sms.fail = true

	err := h.svc.DispatchAlert(context.Background(), alertAt(t, risk.LevelHigh))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAllChannels))
	assert.Zero(t, h.advocate.calls)
}

func TestDispatch_AuditsEveryChannelAttempt(t *testing.T) {
	h := newHarness(connectivity.TierConnected)

	err := h.svc.DispatchAlert(context.Background(), criticalAlert(t))
	require.NoError(t, err)

	// local + 3×SMS + call + push
	count, err := h.auditLog.CountSince(context.Background(), audit.CategoryChannelAttempt, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestItem_StateMachineRejectsInvalidTransitions(t *testing.T) {
	item := ItemFromAlert(criticalAlert(t))

	require.Error(t, item.Transition(StateDelivered))
	require.NoError(t, item.Transition(StateAttempting))
	require.Error(t, item.Transition(StateAdvocateNotified))
	require.NoError(t, item.Transition(StateAllFailed))
	require.NoError(t, item.Transition(StateManualQueued))
	require.Error(t, item.Transition(StateDelivered))
}

func TestItemFromEmergency_PriorityMapsToChannelTable(t *testing.T) {
	immediate, err := emergency.NewRequest(uuid.New(), emergency.CategoryMedical, "en", "sos", nil, risk.LevelMinimal)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelCritical, ItemFromEmergency(immediate).Level)
	assert.True(t, ItemFromEmergency(immediate).Critical)

	routine, err := emergency.NewRequest(uuid.New(), emergency.CategoryGeneral, "en", "sos", nil, risk.LevelMinimal)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelHigh, ItemFromEmergency(routine).Level)
	assert.False(t, ItemFromEmergency(routine).Critical)
}
