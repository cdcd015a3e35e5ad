package connectivity

import "time"

// Tier is the coarse classification of current network usability
type Tier string

const (
	TierUnknown      Tier = "unknown"
	TierConnected    Tier = "connected"
	TierLimited      Tier = "limited"
	TierDisconnected Tier = "disconnected"
)

// SyncStrategy selects how aggressively queued data is synchronized
type SyncStrategy string

const (
	SyncFull         SyncStrategy = "full"
	SyncIncremental  SyncStrategy = "incremental"
	SyncCriticalOnly SyncStrategy = "critical_only"
)

// State is a snapshot of connection state. Single writer (the coordinator),
// many readers; readers always get a copy.
type State struct {
	Tier         Tier         `json:"tier"`
	Quality      int          `json:"quality"`
	LastOnline   time.Time    `json:"last_online"`
	SyncStrategy SyncStrategy `json:"sync_strategy"`
	ChangedAt    time.Time    `json:"changed_at"`
}

// Online reports whether any network path is usable
func (s State) Online() bool {
	return s.Tier == TierConnected || s.Tier == TierLimited
}

// StrategyFor picks the sync strategy a tier implies
func StrategyFor(tier Tier) SyncStrategy {
	switch tier {
	case TierConnected:
		return SyncFull
	case TierLimited:
		return SyncIncremental
	default:
		return SyncCriticalOnly
	}
}
