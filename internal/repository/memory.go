package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps bookings in process memory. Expiry is applied by PopExpired.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*models.Booking)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return withDefaults(b.Clone()), nil
}

func (s *MemoryStore) Put(ctx context.Context, booking *models.Booking) error {
	stored := booking.Clone()
	stored.StartTime = models.NormalizeUTC(stored.StartTime)
	stored.EndTime = models.NormalizeUTC(stored.EndTime)

	s.mu.Lock()
	s.bookings[stored.BookingID] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateIfExists(ctx context.Context, id string, patch models.BookingPatch) (domain.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return domain.UpdateResult{Found: false}, nil
	}
	patch.Apply(b)
	return domain.UpdateResult{Booking: withDefaults(b.Clone()), Found: true}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.bookings, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) QueryByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Booking, 0)
	if userID == "" {
		return result, nil
	}
	for _, b := range s.bookings {
		if b.UserID == userID {
			result = append(result, withDefaults(b.Clone()))
		}
	}
	return result, nil
}

// PopExpired removes bookings whose ttl is at or before now, oldest ttl first.
func (s *MemoryStore) PopExpired(ctx context.Context, now time.Time, limit int) ([]models.ChangeRecord, error) {
	cutoff := now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if b.TTL != nil && *b.TTL <= cutoff {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if *expired[i].TTL == *expired[j].TTL {
			return expired[i].BookingID < expired[j].BookingID
		}
		return *expired[i].TTL < *expired[j].TTL
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	records := make([]models.ChangeRecord, 0, len(expired))
	for _, b := range expired {
		delete(s.bookings, b.BookingID)
		s.seq++
		records = append(records, models.ChangeRecord{
			EventID:        uuid.NewString(),
			EventName:      models.EventRemove,
			SequenceNumber: strconv.FormatInt(s.seq, 10),
			OldImage:       models.ImageOf(withDefaults(b)),
		})
	}
	return records, nil
}

func withDefaults(b *models.Booking) *models.Booking {
	if b.Status == "" {
		b.Status = models.StatusActive
	}
	return b
}
