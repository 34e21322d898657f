package service

import (
	"time"

	"bookingsvc/internal/models"
)

// ComputeTTL returns the epoch second at which the reminder fires, floored at 0.
// A nil lead means no reminder.
func ComputeTTL(start time.Time, lead *int64) *int64 {
	if lead == nil {
		return nil
	}
	ttl := start.Unix() - *lead
	if ttl < 0 {
		ttl = 0
	}
	return &ttl
}

// ImpliedLead inverts a stored ttl against the booking's start time.
func ImpliedLead(b *models.Booking) *int64 {
	if b == nil || b.TTL == nil {
		return nil
	}
	lead := b.StartTime.Unix() - *b.TTL
	if lead < 0 {
		lead = 0
	}
	return &lead
}
