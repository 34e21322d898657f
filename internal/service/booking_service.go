package service

import (
	"context"
	"fmt"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/metrics"
	"bookingsvc/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	store       domain.BookingStore
	defaultLead int64
	minLead     int64
	newID       func() string
	logger      *zerolog.Logger
}

func NewBookingService(store domain.BookingStore, cfg config.BookingConfig, logger *zerolog.Logger) *BookingService {
	if cfg.DefaultReminderLeadSeconds <= 0 {
		cfg.DefaultReminderLeadSeconds = models.DefaultReminderLeadSeconds
	}
	if cfg.MinReminderLeadSeconds <= 0 {
		cfg.MinReminderLeadSeconds = models.MinReminderLeadSeconds
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:       store,
		defaultLead: cfg.DefaultReminderLeadSeconds,
		minLead:     cfg.MinReminderLeadSeconds,
		newID:       uuid.NewString,
		logger:      logger,
	}
}

// Create stores a new active booking and returns it as read back from the store.
func (s *BookingService) Create(ctx context.Context, req models.BookingCreate) (*models.Booking, error) {
	if err := req.Validate(s.minLead); err != nil {
		return nil, err
	}

	start := models.NormalizeUTC(req.StartTime)
	booking := &models.Booking{
		BookingID:  s.newID(),
		UserID:     req.UserID,
		ResourceID: req.ResourceID,
		StartTime:  start,
		EndTime:    models.NormalizeUTC(req.EndTime),
		TTL:        ComputeTTL(start, req.LeadSeconds(s.defaultLead)),
		Status:     models.StatusActive,
	}

	event := s.logger.Info().Str("booking_id", booking.BookingID)
	if booking.TTL != nil {
		event = event.Int64("ttl", *booking.TTL)
	} else {
		event = event.Interface("ttl", nil)
	}
	event.Msg("Creating booking")

	if err := s.store.Put(ctx, booking); err != nil {
		return nil, fmt.Errorf("put booking: %w", err)
	}
	metrics.IncBookingCreated()

	stored, err := s.store.Get(ctx, booking.BookingID)
	if err != nil {
		return nil, fmt.Errorf("read back booking %s: %w", booking.BookingID, err)
	}
	return stored, nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.Get(ctx, id)
}

// ListForUser returns every booking of the user in no particular order.
func (s *BookingService) ListForUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	list, err := s.store.QueryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user: %w", err)
	}
	if list == nil {
		list = make([]*models.Booking, 0)
	}
	return list, nil
}

// Update replaces the supplied fields and recomputes ttl.
//
// An explicit lead recomputes ttl against the new start time, an explicit null
// drops it, and an untouched lead keeps the lead implied by the current record.
func (s *BookingService) Update(ctx context.Context, id string, req models.BookingUpdate) (*models.Booking, error) {
	if err := req.Validate(s.minLead); err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return current, nil
	}

	patch := models.BookingPatch{ResourceID: req.ResourceID}
	newStart := current.StartTime
	if req.StartTime != nil {
		newStart = models.NormalizeUTC(*req.StartTime)
		patch.StartTime = &newStart
	}
	if req.EndTime != nil {
		end := models.NormalizeUTC(*req.EndTime)
		patch.EndTime = &end
	}

	lead := ImpliedLead(current)
	if req.ReminderLeadSeconds.Set {
		lead = req.ReminderLeadSeconds.Ptr()
	}
	if ttl := ComputeTTL(newStart, lead); ttl != nil {
		patch.TTLOp = models.TTLSet
		patch.TTL = *ttl
	} else {
		patch.TTLOp = models.TTLRemove
	}

	return s.applyPatch(ctx, id, patch)
}

// Cancel marks the booking cancelled. Cancelling twice is not an error.
func (s *BookingService) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	status := models.StatusCancelled
	return s.applyPatch(ctx, id, models.BookingPatch{Status: &status})
}

// Delete removes the booking; a missing id is not an error.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

func (s *BookingService) applyPatch(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error) {
	res, err := s.store.UpdateIfExists(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}
	if !res.Found {
		return nil, models.ErrBookingNotFound
	}
	return res.Booking, nil
}
