package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookingsvc/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore(t, filepath.Join(t.TempDir(), "bookings.db")))
}

func TestSQLiteStoreExpiry(t *testing.T) {
	runExpiryContract(t, newTestSQLiteStore(t, filepath.Join(t.TempDir(), "bookings.db")))
}

func TestNewSQLiteStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bookings.db")
	newTestSQLiteStore(t, path)
	assert.FileExists(t, path)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bookings.db")
	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	b := newTestBooking("u1", start, int64Ptr(start.Unix()-900))
	require.NoError(t, first.Put(ctx, b))
	require.NoError(t, first.Close())

	second := newTestSQLiteStore(t, path)
	got, err := second.Get(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, b.UserID, got.UserID)
	require.NotNil(t, got.TTL)
	assert.Equal(t, start.Unix()-900, *got.TTL)
}

func TestSQLiteStorePopExpiredOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "bookings.db"))
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	oldest := newTestBooking("u1", now, int64Ptr(now.Unix()-300))
	middle := newTestBooking("u1", now, int64Ptr(now.Unix()-200))
	newest := newTestBooking("u1", now, int64Ptr(now.Unix()-100))
	for _, b := range []*models.Booking{newest, oldest, middle} {
		require.NoError(t, store.Put(ctx, b))
	}

	batch, err := store.PopExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	firstID, _ := batch[0].OldImage.String(models.AttrBookingID)
	secondID, _ := batch[1].OldImage.String(models.AttrBookingID)
	assert.Equal(t, oldest.BookingID, firstID)
	assert.Equal(t, middle.BookingID, secondID)
	assert.Equal(t, "1", batch[0].SequenceNumber)
	assert.Equal(t, "2", batch[1].SequenceNumber)

	rest, err := store.PopExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "3", rest[0].SequenceNumber)
}

func TestSQLiteStorePutReplacesTTL(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "bookings.db"))
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	b := newTestBooking("u1", now, int64Ptr(now.Unix()-60))
	require.NoError(t, store.Put(ctx, b))
	b.TTL = nil
	require.NoError(t, store.Put(ctx, b))

	records, err := store.PopExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	got, err := store.Get(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Nil(t, got.TTL)
}
