package domain

import (
	"context"
	"time"

	"bookingsvc/internal/models"
)

// UpdateResult is the outcome of a conditional update. Found is false when the
// key did not exist, in which case nothing was written.
type UpdateResult struct {
	Booking *models.Booking
	Found   bool
}

// BookingStore is the key-value table holding bookings.
// Get returns models.ErrBookingNotFound for a missing id; Delete never fails on one.
type BookingStore interface {
	Get(ctx context.Context, id string) (*models.Booking, error)
	Put(ctx context.Context, booking *models.Booking) error
	UpdateIfExists(ctx context.Context, id string, patch models.BookingPatch) (UpdateResult, error)
	Delete(ctx context.Context, id string) error
	QueryByUser(ctx context.Context, userID string) ([]*models.Booking, error)
}

// ExpiringStore is implemented by stores without a native TTL sweep. PopExpired
// removes up to limit bookings whose ttl is at or before now and returns their
// removal records.
type ExpiringStore interface {
	PopExpired(ctx context.Context, now time.Time, limit int) ([]models.ChangeRecord, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.ReminderDue) error
}

type BookingService interface {
	Create(ctx context.Context, req models.BookingCreate) (*models.Booking, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Booking, error)
	Update(ctx context.Context, id string, req models.BookingUpdate) (*models.Booking, error)
	Cancel(ctx context.Context, id string) (*models.Booking, error)
	Delete(ctx context.Context, id string) error
}

// ChangeHandler consumes a batch of change-stream records. The error joins the
// failures of individual records.
type ChangeHandler interface {
	HandleChanges(ctx context.Context, records []models.ChangeRecord) error
}
