package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	domain "github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/cache"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	fail bool
}

func (f *fakeProbe) Ping(ctx context.Context, caregiverID uuid.UUID) error {
	if f.fail {
		return errors.NewTransportError("heartbeat", "no response")
	}
	return nil
}

func newTestCoordinator(t *testing.T, probe HeartbeatProbe) (*Coordinator, *repository.MemoryAuditStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presence := cache.NewHeartbeatPresence(client)
	auditLog := repository.NewMemoryAuditStore()

	cfg := Config{
		HeartbeatInterval: time.Minute,
		MissThreshold:     3,
		ProbeTimeout:      time.Second,
	}
	return NewCoordinator(probe, presence, auditLog, cfg, nil), auditLog
}

func TestCoordinator_StartsUnknownWithCriticalOnlySync(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeProbe{})

	state := c.Current()
	assert.Equal(t, domain.TierUnknown, state.Tier)
	assert.Equal(t, domain.SyncCriticalOnly, state.SyncStrategy)
	assert.False(t, state.Online())
}

func TestNetworkStateChanged_ConnectedRunsFlushHooks(t *testing.T) {
	c, auditLog := newTestCoordinator(t, &fakeProbe{})

	flushed := 0
	c.OnReconnect(func(ctx context.Context) { flushed++ })

	err := c.NetworkStateChanged(context.Background(), domain.TierConnected, 4)
	require.NoError(t, err)

	assert.Equal(t, 1, flushed)
	state := c.Current()
	assert.Equal(t, domain.TierConnected, state.Tier)
	assert.Equal(t, domain.SyncFull, state.SyncStrategy)
	assert.False(t, state.LastOnline.IsZero())

	count, err := auditLog.CountSince(context.Background(), audit.CategoryNetworkState, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNetworkStateChanged_DisconnectedSwitchesToCriticalOnly(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeProbe{})

	require.NoError(t, c.NetworkStateChanged(context.Background(), domain.TierConnected, 4))
	require.NoError(t, c.NetworkStateChanged(context.Background(), domain.TierDisconnected, 0))

	state := c.Current()
	assert.Equal(t, domain.TierDisconnected, state.Tier)
	assert.Equal(t, domain.SyncCriticalOnly, state.SyncStrategy)
	// last-online survives the drop
	assert.False(t, state.LastOnline.IsZero())
}

func TestNetworkStateChanged_SameTierOnlyUpdatesQuality(t *testing.T) {
	c, auditLog := newTestCoordinator(t, &fakeProbe{})

	require.NoError(t, c.NetworkStateChanged(context.Background(), domain.TierLimited, 2))
	require.NoError(t, c.NetworkStateChanged(context.Background(), domain.TierLimited, 1))

	assert.Equal(t, 1, c.Current().Quality)

	count, err := auditLog.CountSince(context.Background(), audit.CategoryNetworkState, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHeartbeat_ThreeMissesMarkChannelOffline(t *testing.T) {
	probe := &fakeProbe{fail: true}
	c, auditLog := newTestCoordinator(t, probe)

	caregiverID := uuid.New()
	c.RegisterCaregiverChannel(caregiverID)
	require.True(t, c.ChannelOnline(caregiverID))

	ctx := context.Background()
	c.heartbeatPass(ctx)
	c.heartbeatPass(ctx)
	assert.True(t, c.ChannelOnline(caregiverID), "below threshold stays online")

	c.heartbeatPass(ctx)
	assert.False(t, c.ChannelOnline(caregiverID))

	count, err := auditLog.CountSince(ctx, audit.CategoryHeartbeatMissed, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestHeartbeat_SuccessResetsMissCount(t *testing.T) {
	probe := &fakeProbe{fail: true}
	c, _ := newTestCoordinator(t, probe)

	caregiverID := uuid.New()
	c.RegisterCaregiverChannel(caregiverID)

	ctx := context.Background()
	c.heartbeatPass(ctx)
	c.heartbeatPass(ctx)

	probe.fail = false
	c.heartbeatPass(ctx)
	assert.True(t, c.ChannelOnline(caregiverID))

	// misses start over after the reset
	probe.fail = true
	c.heartbeatPass(ctx)
	c.heartbeatPass(ctx)
	assert.True(t, c.ChannelOnline(caregiverID))
	c.heartbeatPass(ctx)
	assert.False(t, c.ChannelOnline(caregiverID))
}

func TestChannelOnline_UnregisteredCaregiversAssumedOnline(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeProbe{})
	assert.True(t, c.ChannelOnline(uuid.New()))
}

func TestRunAndStop(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeProbe{})

	go c.Run(context.Background())
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
