package cache_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/watchme-app/vault-api/services/common/cache"
)

func TestDevices(t *testing.T) {
	ctx := testContext(t)
	server := miniredis.RunT(t)

	devices, err := cache.OpenDevices(ctx, zaptest.NewLogger(t), server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, devices.Close()) }()

	ids, err := devices.Members(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, devices.Add(ctx, "zeta", "alpha"))
	require.NoError(t, devices.Add(ctx, "zeta"))
	require.NoError(t, devices.Add(ctx))

	ids, err = devices.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, ids)

	ok, err := server.SIsMember(cache.DevicesKey, "alpha")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, devices.Ping(ctx))
}

func TestDevicesWarm(t *testing.T) {
	ctx := testContext(t)
	server := miniredis.RunT(t)

	devices, err := cache.OpenDevices(ctx, zaptest.NewLogger(t), server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, devices.Close()) }()

	require.NoError(t, devices.Add(ctx, "dev-c"))
	warm, err := devices.Warm(ctx)
	require.NoError(t, err)
	assert.False(t, warm, "uploads alone never make the set complete")

	require.NoError(t, devices.Fill(ctx, "dev-a", "dev-b"))
	warm, err = devices.Warm(ctx)
	require.NoError(t, err)
	assert.True(t, warm)

	ids, err := devices.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-a", "dev-b", "dev-c"}, ids)

	server.FlushAll()
	warm, err = devices.Warm(ctx)
	require.NoError(t, err)
	assert.False(t, warm)

	// An empty device list is still a complete one.
	require.NoError(t, devices.Fill(ctx))
	warm, err = devices.Warm(ctx)
	require.NoError(t, err)
	assert.True(t, warm)
}

func TestDevicesUnavailable(t *testing.T) {
	ctx := testContext(t)
	server := miniredis.RunT(t)

	devices, err := cache.OpenDevices(ctx, zaptest.NewLogger(t), server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { _ = devices.Close() }()

	server.Close()

	_, err = devices.Members(ctx)
	require.Error(t, err)
	assert.True(t, cache.Error.Has(err))
}

func TestOpenDevicesFails(t *testing.T) {
	_, err := cache.OpenDevices(testContext(t), zaptest.NewLogger(t), "127.0.0.1:1", "", 0)
	require.Error(t, err)
	assert.True(t, cache.Error.Has(err))
}
