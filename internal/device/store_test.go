package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/pushcore/internal/push"
)

func seedTarget(t *testing.T, store *MemoryStore) *push.DeviceTarget {
	t.Helper()
	target := &push.DeviceTarget{
		DeviceID: "dev-1",
		SiteID:   "site-1",
		Platform: push.PlatformFCM,
		Token:    "fcm-token",
		Tokens: map[push.Platform]string{
			push.PlatformNATS: "device.inbox.1",
		},
		Capabilities: []push.Platform{push.PlatformFCM, push.PlatformNATS},
		Active:       true,
	}
	require.NoError(t, store.Upsert(context.Background(), target))
	return target
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	seedTarget(t, store)
	ctx := context.Background()

	got, err := store.Get(ctx, "dev-1")
	require.NoError(t, err)

	// Mutating the returned target must not leak into the store.
	got.Capabilities[0] = push.PlatformSNS
	got.Tokens[push.PlatformNATS] = "tampered"

	again, err := store.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, push.PlatformFCM, again.Capabilities[0])
	assert.Equal(t, "device.inbox.1", again.Tokens[push.PlatformNATS])
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateCapabilities(t *testing.T) {
	store := NewMemoryStore()
	seedTarget(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateCapabilities(ctx, "dev-1", []push.Platform{push.PlatformNATS}))

	got, err := store.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []push.Platform{push.PlatformNATS}, got.Capabilities)

	err = store.UpdateCapabilities(ctx, "ghost", []push.Platform{push.PlatformFCM})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeactivateToken(t *testing.T) {
	ctx := context.Background()

	t.Run("removes one transport", func(t *testing.T) {
		store := NewMemoryStore()
		seedTarget(t, store)

		require.NoError(t, store.DeactivateToken(ctx, "dev-1", push.PlatformFCM))

		got, err := store.Get(ctx, "dev-1")
		require.NoError(t, err)
		assert.Empty(t, got.Token)
		assert.Equal(t, []push.Platform{push.PlatformNATS}, got.Capabilities)
		assert.True(t, got.Active)
	})

	t.Run("device goes inactive with no transports left", func(t *testing.T) {
		store := NewMemoryStore()
		seedTarget(t, store)

		require.NoError(t, store.DeactivateToken(ctx, "dev-1", push.PlatformFCM))
		require.NoError(t, store.DeactivateToken(ctx, "dev-1", push.PlatformNATS))

		got, err := store.Get(ctx, "dev-1")
		require.NoError(t, err)
		assert.Empty(t, got.Capabilities)
		assert.False(t, got.Active)
	})
}
