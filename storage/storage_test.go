package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-bot/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testStoreContract runs the registry invariants against any backend.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 8, 28, 16, 0, 0, 0, time.UTC)

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Ticket{ChannelID: "c1", OwnerID: "alice", CreatedAt: created, Status: StatusOpen}))

		got, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.True(t, created.Equal(got.CreatedAt))
		assert.Equal(t, StatusOpen, got.Status)
	})

	t.Run("second create collides", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Ticket{ChannelID: "c1", OwnerID: "alice", CreatedAt: created, Status: StatusOpen}))

		err := s.Create(ctx, Ticket{ChannelID: "c1", OwnerID: "bob", CreatedAt: created.Add(time.Minute), Status: StatusOpen})
		assert.ErrorIs(t, err, ErrTicketExists)

		got, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
	})

	t.Run("absent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrTicketNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrTicketNotFound)
		assert.ErrorIs(t, s.SetStatus(ctx, "missing", StatusClosing), ErrTicketNotFound)
	})

	t.Run("status and delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Ticket{ChannelID: "c1", OwnerID: "alice", CreatedAt: created, Status: StatusOpen}))
		require.NoError(t, s.SetStatus(ctx, "c1", StatusClosing))

		got, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, StatusClosing, got.Status)

		require.NoError(t, s.Delete(ctx, "c1"))
		_, err = s.Get(ctx, "c1")
		assert.ErrorIs(t, err, ErrTicketNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "c1"), ErrTicketNotFound)
	})

	t.Run("list ordered by creation", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Ticket{ChannelID: "late", OwnerID: "a", CreatedAt: created.Add(time.Hour), Status: StatusOpen}))
		require.NoError(t, s.Create(ctx, Ticket{ChannelID: "early", OwnerID: "b", CreatedAt: created, Status: StatusOpen}))

		got, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "early", got[0].ChannelID)
		assert.Equal(t, "late", got[1].ChannelID)
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tickets.db"), discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedisStore(rdb, "ticket:")
	})
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), Prefix: "t:"}, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Create(context.Background(), Ticket{ChannelID: "c1", OwnerID: "alice", CreatedAt: time.Now(), Status: StatusOpen}))
	assert.True(t, mr.Exists("t:c1"))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tickets.db")

	s, err := OpenSQLite(ctx, path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, Ticket{ChannelID: "c1", OwnerID: "alice", CreatedAt: time.Now(), Status: StatusOpen}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), &config.StorageConfig{Driver: config.DriverMemory}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), &config.StorageConfig{Driver: "postgres"}, discardLogger())
	assert.Error(t, err)

	_, err = Open(context.Background(), &config.StorageConfig{Driver: config.DriverMongoDB}, discardLogger())
	assert.Error(t, err)
}

func TestStatus_Text(t *testing.T) {
	data, err := json.Marshal(Ticket{ChannelID: "c1", Status: StatusClosing})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"closing"`)

	var got Ticket
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, StatusClosing, got.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"closed"}`), &got))

	_, err = json.Marshal(Ticket{})
	assert.Error(t, err)
}
