package repository

import (
	"context"
	"testing"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), s
}

func TestRedisStore(t *testing.T) {
	store, _ := newMiniredisStore(t)
	runStoreContract(t, store)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, _ := newMiniredisStore(t)
	runExpiryContract(t, store)
}

func TestRedisStoreLayout(t *testing.T) {
	store, s := newMiniredisStore(t)
	ctx := context.Background()
	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	b := newTestBooking("u1", start, int64Ptr(start.Unix()-900))
	require.NoError(t, store.Put(ctx, b))

	t.Run("HashFields", func(t *testing.T) {
		key := bookingKey(b.BookingID)
		assert.Equal(t, "2030-01-01T12:00:00+00:00", s.HGet(key, models.AttrStartTime))
		assert.Equal(t, "1893498300", s.HGet(key, models.AttrTTL))
		assert.Equal(t, models.StatusActive, s.HGet(key, models.AttrStatus))
	})

	t.Run("Indexes", func(t *testing.T) {
		ok, err := s.SIsMember(userBookingsKey("u1"), b.BookingID)
		require.NoError(t, err)
		assert.True(t, ok)

		score, err := s.ZScore(redisExpiryKey, b.BookingID)
		require.NoError(t, err)
		assert.Equal(t, float64(start.Unix()-900), score)
	})

	t.Run("RemoveTTLDropsDeadline", func(t *testing.T) {
		_, err := store.UpdateIfExists(ctx, b.BookingID, models.BookingPatch{TTLOp: models.TTLRemove})
		require.NoError(t, err)

		assert.True(t, s.Exists(bookingKey(b.BookingID)))
		assert.Equal(t, "", s.HGet(bookingKey(b.BookingID), models.AttrTTL))

		members, _ := s.ZMembers(redisExpiryKey)
		assert.NotContains(t, members, b.BookingID)
	})

	t.Run("PutMovesOwner", func(t *testing.T) {
		moved := b.Clone()
		moved.UserID = "u2"
		require.NoError(t, store.Put(ctx, moved))

		ok, _ := s.SIsMember(userBookingsKey("u1"), b.BookingID)
		assert.False(t, ok)
		list, err := store.QueryByUser(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, b.BookingID, list[0].BookingID)
	})
}

func TestRedisStoreStaleIndexMember(t *testing.T) {
	store, s := newMiniredisStore(t)
	ctx := context.Background()

	_, err := s.SAdd(userBookingsKey("u1"), "ghost")
	require.NoError(t, err)

	list, err := store.QueryByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStoreExpiryRespectsUpdatedTTL(t *testing.T) {
	store, s := newMiniredisStore(t)
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	b := newTestBooking("u1", now, int64Ptr(now.Unix()-10))
	require.NoError(t, store.Put(ctx, b))

	// Simulate a stale deadline left behind by a concurrent writer.
	s.HSet(bookingKey(b.BookingID), models.AttrTTL, "2000000000")

	records, err := store.PopExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.Get(ctx, b.BookingID)
	assert.NoError(t, err)
}

func TestNewRedisClient(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr(), PoolSize: 2})
	defer client.Close()

	require.NoError(t, Ping(context.Background(), client))
}

func TestRedisStoreNilClient(t *testing.T) {
	store := NewRedisStore(nil)
	ctx := context.Background()

	_, err := store.Get(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, store.Put(ctx, &models.Booking{BookingID: "x"}))
	assert.Error(t, store.Delete(ctx, "x"))
}
