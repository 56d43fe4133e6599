package credstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identkit/identcli/credstore"
)

func setupRedisStore(t *testing.T) (*credstore.Redis, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client, err := credstore.NewRedisClient(context.Background(), "redis://"+mini.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return credstore.NewRedis(client, ""), mini
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := credstore.NewRedisClient(context.Background(), "://nope")
	require.Error(t, err)
}

func TestNewRedisClientRejectsUnreachableServer(t *testing.T) {
	_, err := credstore.NewRedisClient(context.Background(), "redis://127.0.0.1:1")
	require.Error(t, err)
}

func TestRedisGetAbsent(t *testing.T) {
	store, _ := setupRedisStore(t)

	_, ok, err := store.Get(credstore.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSetAndGet(t *testing.T) {
	store, mini := setupRedisStore(t)

	require.NoError(t, store.Set(credstore.AccessToken, "access"))

	value, ok, err := store.Get(credstore.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access", value)

	// Keys live under the default namespace.
	got, err := mini.Get("identcli:access_token")
	require.NoError(t, err)
	assert.Equal(t, "access", got)
}

func TestRedisSetPair(t *testing.T) {
	store, _ := setupRedisStore(t)

	require.NoError(t, store.SetPair("access", "refresh"))

	access, ok, err := store.Get(credstore.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access", access)

	refresh, ok, err := store.Get(credstore.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refresh", refresh)
}

func TestRedisCustomPrefix(t *testing.T) {
	mini := miniredis.RunT(t)
	client, err := credstore.NewRedisClient(context.Background(), "redis://"+mini.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := credstore.NewRedis(client, "worker-7")
	require.NoError(t, store.Set(credstore.RefreshToken, "refresh"))

	got, err := mini.Get("worker-7:refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "refresh", got)
}

func TestRedisClear(t *testing.T) {
	store, mini := setupRedisStore(t)
	require.NoError(t, store.SetPair("access", "refresh"))

	require.NoError(t, store.Clear())

	_, ok, err := store.Get(credstore.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mini.Exists("identcli:refresh_token"))
}
