package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	raw, err := Encode(payload{Name: "main", Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"data":{"name":"main","count":3}}`, string(raw))

	var out payload
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, payload{Name: "main", Count: 3}, out)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	var out payload
	err := Decode([]byte(`{"version":7,"data":{}}`), &out)
	assert.ErrorIs(t, err, ErrVersion)

	err = Decode([]byte(`not json`), &out)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrVersion))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "room/main/messages", MessagesKey("main"))
	assert.Equal(t, "room/main/settings", SettingsKey("main"))
}

// exerciseStore runs the shared Store contract against one backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte("v1")))
	require.NoError(t, s.Save(ctx, "k", []byte("v2")))

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	got[0] = 'x'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), again, "Load must return a copy")
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)
	assert.Equal(t, 2, s.Saves())
	assert.NoError(t, s.Close())
}

func TestPebbleStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := OpenPebble(dir, nil)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := OpenPebble(dir, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got, "value must survive reopen")
}

// TestRedisStore runs only when REDIS_ADDR points at a disposable server.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "chatroom-test-" + t.Name()}, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(context.Background(), Config{Backend: "Pebble", Path: filepath.Join(t.TempDir(), "db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PebbleStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), Config{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
