package models

import "time"

// Booking is a reservation of a resource by a user over a time window.
type Booking struct {
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	TTL        *int64    `json:"ttl"`
	Status     string    `json:"status"` // active, cancelled
}

// Clone returns a deep copy so stores never hand out shared state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.TTL != nil {
		ttl := *b.TTL
		c.TTL = &ttl
	}
	return &c
}

// TTLOp says what an update does with the stored ttl attribute.
type TTLOp int

const (
	TTLKeep TTLOp = iota
	TTLSet
	TTLRemove
)

// BookingPatch is a selective field replacement applied by a conditional update.
// Nil pointers leave the stored attribute untouched.
type BookingPatch struct {
	ResourceID *string
	StartTime  *time.Time
	EndTime    *time.Time
	Status     *string
	TTLOp      TTLOp
	TTL        int64
}

// IsEmpty reports whether applying the patch would change nothing.
func (p BookingPatch) IsEmpty() bool {
	return p.ResourceID == nil && p.StartTime == nil && p.EndTime == nil && p.Status == nil && p.TTLOp == TTLKeep
}

// Apply mutates b according to the patch.
func (p BookingPatch) Apply(b *Booking) {
	if p.ResourceID != nil {
		b.ResourceID = *p.ResourceID
	}
	if p.StartTime != nil {
		b.StartTime = NormalizeUTC(*p.StartTime)
	}
	if p.EndTime != nil {
		b.EndTime = NormalizeUTC(*p.EndTime)
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	switch p.TTLOp {
	case TTLSet:
		ttl := p.TTL
		b.TTL = &ttl
	case TTLRemove:
		b.TTL = nil
	}
}
