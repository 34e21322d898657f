package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/metrics"
	"bookingsvc/internal/models"

	"github.com/rs/zerolog"
)

// SkipReason explains why a change record produced no reminder.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNotRemoval       SkipReason = "not_removal"
	SkipMissingBookingID SkipReason = "missing_booking_id"
	SkipMissingUserID    SkipReason = "missing_user_id"
	SkipInvalidTTL       SkipReason = "invalid_ttl"
)

// RecordFailure is a record whose reminder could not be published.
type RecordFailure struct {
	EventID        string
	SequenceNumber string
	Err            error
}

// BatchResult summarises one processed batch.
type BatchResult struct {
	Emitted  int
	Skipped  int
	Failures []RecordFailure
}

// Err joins the failures, nil when every record succeeded.
func (r BatchResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("record %s: %w", f.EventID, f.Err))
	}
	return errors.Join(errs...)
}

// ExpiryNotifier turns removal records of bookings that carried a ttl into
// ReminderDue events.
//
// An explicit delete of a booking whose ttl has not been reached yet looks the
// same as an expiry in the removal image, so it also produces a reminder.
type ExpiryNotifier struct {
	publisher    domain.EventPublisher
	partialBatch bool
	logger       *zerolog.Logger
}

func NewExpiryNotifier(publisher domain.EventPublisher, cfg config.EventsConfig, logger *zerolog.Logger) *ExpiryNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExpiryNotifier{
		publisher:    publisher,
		partialBatch: cfg.PartialBatchResponse,
		logger:       logger,
	}
}

// ReminderFromRecord extracts the reminder carried by a removal record.
func ReminderFromRecord(rec models.ChangeRecord) (models.ReminderDue, SkipReason) {
	if rec.EventName != models.EventRemove {
		return models.ReminderDue{}, SkipNotRemoval
	}

	bookingID, _ := rec.OldImage.String(models.AttrBookingID)
	if bookingID == "" {
		return models.ReminderDue{}, SkipMissingBookingID
	}
	userID, _ := rec.OldImage.String(models.AttrUserID)
	if userID == "" {
		return models.ReminderDue{}, SkipMissingUserID
	}

	raw, _ := rec.OldImage.Number(models.AttrTTL)
	ttl, ok := parseTTL(raw)
	if !ok {
		return models.ReminderDue{}, SkipInvalidTTL
	}
	return models.NewReminderDue(bookingID, userID, ttl), SkipNone
}

// parseTTL accepts only a plain run of decimal digits.
func parseTTL(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	ttl, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return ttl, true
}

// Process handles every record of the batch; a failed publish does not stop
// the remaining records.
func (n *ExpiryNotifier) Process(ctx context.Context, records []models.ChangeRecord) BatchResult {
	var result BatchResult
	for _, rec := range records {
		reminder, reason := ReminderFromRecord(rec)
		if reason != SkipNone {
			result.Skipped++
			metrics.IncReminderSkipped(string(reason))
			n.logger.Debug().
				Str("event_id", rec.EventID).
				Str("event_name", rec.EventName).
				Str("reason", string(reason)).
				Msg("change record skipped")
			continue
		}

		n.logger.Info().
			Str("booking_id", reminder.BookingID).
			Str("user_id", reminder.UserID).
			Int64("ttl", reminder.TTL).
			Msg("Emitting reminder event")

		if err := n.publisher.Publish(ctx, reminder); err != nil {
			metrics.IncReminderFailure()
			n.logger.Error().Err(err).
				Str("event_id", rec.EventID).
				Str("booking_id", reminder.BookingID).
				Msg("failed to emit reminder")
			result.Failures = append(result.Failures, RecordFailure{
				EventID:        rec.EventID,
				SequenceNumber: rec.SequenceNumber,
				Err:            err,
			})
			continue
		}
		metrics.IncReminderEmitted()
		result.Emitted++
	}
	return result
}

// HandleChanges processes the batch and returns the joined publish failures.
func (n *ExpiryNotifier) HandleChanges(ctx context.Context, records []models.ChangeRecord) error {
	return n.Process(ctx, records).Err()
}
