package repository

import (
	"context"
	"testing"
	"time"

	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBooking(userID string, start time.Time, ttl *int64) *models.Booking {
	return &models.Booking{
		BookingID:  uuid.NewString(),
		UserID:     userID,
		ResourceID: "room-1",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		TTL:        ttl,
		Status:     models.StatusActive,
	}
}

func int64Ptr(v int64) *int64 { return &v }

// runStoreContract exercises the behaviour every BookingStore must share.
func runStoreContract(t *testing.T, store domain.BookingStore) {
	ctx := context.Background()
	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("PutAndGet", func(t *testing.T) {
		b := newTestBooking("u-put", start, int64Ptr(start.Unix()-1200))
		require.NoError(t, store.Put(ctx, b))

		got, err := store.Get(ctx, b.BookingID)
		require.NoError(t, err)
		assert.Equal(t, b.BookingID, got.BookingID)
		assert.Equal(t, "u-put", got.UserID)
		assert.True(t, start.Equal(got.StartTime))
		assert.Equal(t, time.UTC, got.StartTime.Location())
		require.NotNil(t, got.TTL)
		assert.Equal(t, start.Unix()-1200, *got.TTL)
		assert.Equal(t, models.StatusActive, got.Status)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("UpdateIfExists", func(t *testing.T) {
		b := newTestBooking("u-upd", start, int64Ptr(start.Unix()-600))
		require.NoError(t, store.Put(ctx, b))

		resource := "room-2"
		newStart := start.Add(2 * time.Hour)
		res, err := store.UpdateIfExists(ctx, b.BookingID, models.BookingPatch{
			ResourceID: &resource,
			StartTime:  &newStart,
			TTLOp:      models.TTLSet,
			TTL:        newStart.Unix() - 600,
		})
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Equal(t, "room-2", res.Booking.ResourceID)
		assert.True(t, newStart.Equal(res.Booking.StartTime))
		assert.Equal(t, newStart.Unix()-600, *res.Booking.TTL)
		assert.True(t, b.EndTime.Equal(res.Booking.EndTime))

		got, err := store.Get(ctx, b.BookingID)
		require.NoError(t, err)
		assert.Equal(t, res.Booking, got)
	})

	t.Run("UpdateRemovesTTL", func(t *testing.T) {
		b := newTestBooking("u-rm", start, int64Ptr(start.Unix()-900))
		require.NoError(t, store.Put(ctx, b))

		res, err := store.UpdateIfExists(ctx, b.BookingID, models.BookingPatch{TTLOp: models.TTLRemove})
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Nil(t, res.Booking.TTL)
	})

	t.Run("UpdateStatusKeepsTTL", func(t *testing.T) {
		b := newTestBooking("u-cancel", start, int64Ptr(start.Unix()-900))
		require.NoError(t, store.Put(ctx, b))

		cancelled := models.StatusCancelled
		res, err := store.UpdateIfExists(ctx, b.BookingID, models.BookingPatch{Status: &cancelled})
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Equal(t, models.StatusCancelled, res.Booking.Status)
		require.NotNil(t, res.Booking.TTL)
		assert.Equal(t, start.Unix()-900, *res.Booking.TTL)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		cancelled := models.StatusCancelled
		res, err := store.UpdateIfExists(ctx, "does-not-exist", models.BookingPatch{Status: &cancelled})
		require.NoError(t, err)
		assert.False(t, res.Found)

		_, err = store.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		b := newTestBooking("u-del", start, nil)
		require.NoError(t, store.Put(ctx, b))

		require.NoError(t, store.Delete(ctx, b.BookingID))
		require.NoError(t, store.Delete(ctx, b.BookingID))
		_, err := store.Get(ctx, b.BookingID)
		assert.ErrorIs(t, err, models.ErrBookingNotFound)

		list, err := store.QueryByUser(ctx, "u-del")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("QueryByUser", func(t *testing.T) {
		b1 := newTestBooking("u1", start, nil)
		b2 := newTestBooking("u2", start, nil)
		b3 := newTestBooking("u1", start.Add(time.Hour), nil)
		for _, b := range []*models.Booking{b1, b2, b3} {
			require.NoError(t, store.Put(ctx, b))
		}

		list, err := store.QueryByUser(ctx, "u1")
		require.NoError(t, err)
		ids := make([]string, 0, len(list))
		for _, b := range list {
			ids = append(ids, b.BookingID)
		}
		assert.ElementsMatch(t, []string{b1.BookingID, b3.BookingID}, ids)

		empty, err := store.QueryByUser(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

// runExpiryContract checks PopExpired removes due bookings exactly once.
func runExpiryContract(t *testing.T, store interface {
	domain.BookingStore
	domain.ExpiringStore
}) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	due := newTestBooking("u-exp", now.Add(10*time.Minute), int64Ptr(now.Unix()-5))
	later := newTestBooking("u-exp", now.Add(time.Hour), int64Ptr(now.Unix()+3600))
	noTTL := newTestBooking("u-exp", now, nil)
	for _, b := range []*models.Booking{due, later, noTTL} {
		require.NoError(t, store.Put(ctx, b))
	}

	records, err := store.PopExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, models.EventRemove, rec.EventName)
	assert.NotEmpty(t, rec.SequenceNumber)
	id, ok := rec.OldImage.String(models.AttrBookingID)
	assert.True(t, ok)
	assert.Equal(t, due.BookingID, id)
	user, _ := rec.OldImage.String(models.AttrUserID)
	assert.Equal(t, "u-exp", user)
	ttl, ok := rec.OldImage.Number(models.AttrTTL)
	assert.True(t, ok)
	assert.Equal(t, "1893499195", ttl)

	_, err = store.Get(ctx, due.BookingID)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	again, err := store.PopExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	remaining, err := store.QueryByUser(ctx, "u-exp")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
