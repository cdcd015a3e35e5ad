package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAuditStore_AppendThenVerify(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	for i := 0; i < 50; i++ {
		_, err := store.Append(ctx, audit.CategoryFactorComputed, map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	result, err := store.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 50, result.EventsVerified)
}

func TestMemoryAuditStore_TamperDetection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	for i := 0; i < 10; i++ {
		_, err := store.Append(ctx, audit.CategoryAlertCreated, map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	// Retroactively edit a stored field
	store.All()[4].Details["i"] = -1

	result, err := store.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Breaks)
}

func TestMemoryAuditStore_ConcurrentAppendsKeepChainIntact(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := store.Append(ctx, audit.CategoryChannelAttempt, map[string]interface{}{"g": g, "i": i})
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	result, err := store.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 200, result.EventsVerified)
}

func TestMemoryAuditStore_CountAndListSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	cutoff := time.Now().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, audit.CategoryAlertResolved, nil)
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, audit.CategoryAlertCreated, nil)
	require.NoError(t, err)

	count, err := store.CountSince(ctx, audit.CategoryAlertResolved, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	events, err := store.ListSince(ctx, audit.CategoryAlertCreated, cutoff)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryAlertCreated, events[0].Category)
}
