package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/eldershield/eldershield-backend/internal/domain/connectivity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config for the coordinator
type Config struct {
	HeartbeatInterval time.Duration
	MissThreshold     int
	ProbeTimeout      time.Duration
}

// DefaultConfig returns the documented connectivity policy
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Minute,
		MissThreshold:     3,
		ProbeTimeout:      10 * time.Second,
	}
}

// HeartbeatProbe checks whether a caregiver's channel answers
type HeartbeatProbe interface {
	Ping(ctx context.Context, caregiverID uuid.UUID) error
}

// PresenceStore persists consecutive heartbeat miss counts
type PresenceStore interface {
	RecordMiss(ctx context.Context, caregiverID uuid.UUID) (int, error)
	ClearMisses(ctx context.Context, caregiverID uuid.UUID) error
}

// FlushHook runs when the network comes back. Used to flush queued
// emergency sends and kick a sync attempt.
type FlushHook func(ctx context.Context)

// Coordinator owns the process-wide connection state. Single writer; readers
// get snapshots through Current.
type Coordinator struct {
	cfg      Config
	probe    HeartbeatProbe
	presence PresenceStore
	auditLog audit.Store
	logger   *zap.Logger

	mu    sync.RWMutex
	state connectivity.State

	hookMu     sync.Mutex
	flushHooks []FlushHook

	chanMu   sync.RWMutex
	channels map[uuid.UUID]bool // caregiver id -> channel online

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCoordinator creates a coordinator in the unknown state
func NewCoordinator(probe HeartbeatProbe, presence PresenceStore, auditLog audit.Store, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		probe:    probe,
		presence: presence,
		auditLog: auditLog,
		logger:   logger,
		state: connectivity.State{
			Tier:         connectivity.TierUnknown,
			SyncStrategy: connectivity.SyncCriticalOnly,
		},
		channels: make(map[uuid.UUID]bool),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Current returns a snapshot of connection state
func (c *Coordinator) Current() connectivity.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnReconnect registers a hook run whenever the tier transitions to connected
func (c *Coordinator) OnReconnect(hook FlushHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.flushHooks = append(c.flushHooks, hook)
}

// NetworkStateChanged applies a platform connectivity notification.
// Transition to connected flushes queued work; transition to disconnected
// drops to the critical-only sync strategy. Neither blocks escalation:
// dispatch consults the snapshot and works offline over SMS.
func (c *Coordinator) NetworkStateChanged(ctx context.Context, tier connectivity.Tier, quality int) error {
	now := time.Now().UTC()

	c.mu.Lock()
	previous := c.state.Tier
	if previous == tier {
		c.state.Quality = quality
		c.mu.Unlock()
		return nil
	}

	c.state.Tier = tier
	c.state.Quality = quality
	c.state.SyncStrategy = connectivity.StrategyFor(tier)
	c.state.ChangedAt = now
	if c.state.Online() {
		c.state.LastOnline = now
	}
	c.mu.Unlock()

	if _, err := c.auditLog.Append(ctx, audit.CategoryNetworkState, map[string]interface{}{
		"previous": string(previous),
		"current":  string(tier),
		"quality":  quality,
		"strategy": string(connectivity.StrategyFor(tier)),
	}); err != nil {
		return err
	}

	c.logger.Info("network state changed",
		zap.String("previous", string(previous)),
		zap.String("current", string(tier)),
		zap.Int("quality", quality))

	if tier == connectivity.TierConnected {
		c.runFlushHooks(ctx)
	}
	return nil
}

func (c *Coordinator) runFlushHooks(ctx context.Context) {
	c.hookMu.Lock()
	hooks := make([]FlushHook, len(c.flushHooks))
	copy(hooks, c.flushHooks)
	c.hookMu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
}

// RegisterCaregiverChannel adds a caregiver to the heartbeat rotation.
// Channels start online.
func (c *Coordinator) RegisterCaregiverChannel(caregiverID uuid.UUID) {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	if _, ok := c.channels[caregiverID]; !ok {
		c.channels[caregiverID] = true
	}
}

// ChannelOnline reports whether the caregiver's channel is usable for
// dispatch selection. Unregistered caregivers are assumed online: the
// heartbeat loop only ever narrows delivery, never blocks it.
func (c *Coordinator) ChannelOnline(caregiverID uuid.UUID) bool {
	c.chanMu.RLock()
	defer c.chanMu.RUnlock()
	online, ok := c.channels[caregiverID]
	return !ok || online
}

// Run drives the heartbeat loop until Stop or context cancellation
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.heartbeatPass(ctx)
		}
	}
}

// Stop terminates the heartbeat loop and waits for it to exit
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// heartbeatPass probes every registered caregiver channel once
func (c *Coordinator) heartbeatPass(ctx context.Context) {
	c.chanMu.RLock()
	ids := make([]uuid.UUID, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	c.chanMu.RUnlock()

	for _, id := range ids {
		c.probeCaregiver(ctx, id)
	}
}

func (c *Coordinator) probeCaregiver(ctx context.Context, caregiverID uuid.UUID) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	err := c.probe.Ping(probeCtx, caregiverID)
	cancel()

	if err == nil {
		if clearErr := c.presence.ClearMisses(ctx, caregiverID); clearErr != nil {
			c.logger.Warn("failed to clear heartbeat misses",
				zap.String("caregiver_id", caregiverID.String()), zap.Error(clearErr))
		}
		c.setChannelOnline(caregiverID, true)
		return
	}

	misses, recErr := c.presence.RecordMiss(ctx, caregiverID)
	if recErr != nil {
		c.logger.Error("failed to record heartbeat miss",
			zap.String("caregiver_id", caregiverID.String()), zap.Error(recErr))
		return
	}

	if _, auditErr := c.auditLog.Append(ctx, audit.CategoryHeartbeatMissed, map[string]interface{}{
		"caregiver_id":        caregiverID.String(),
		"consecutive_misses":  misses,
		"threshold":           c.cfg.MissThreshold,
	}); auditErr != nil {
		c.logger.Error("failed to audit heartbeat miss", zap.Error(auditErr))
	}

	if misses >= c.cfg.MissThreshold {
		c.setChannelOnline(caregiverID, false)
		c.logger.Warn("caregiver channel marked offline",
			zap.String("caregiver_id", caregiverID.String()),
			zap.Int("consecutive_misses", misses))
	}
}

func (c *Coordinator) setChannelOnline(caregiverID uuid.UUID, online bool) {
	c.chanMu.Lock()
	c.channels[caregiverID] = online
	c.chanMu.Unlock()
}
