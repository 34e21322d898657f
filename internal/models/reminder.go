package models

// ReminderDue is published when a booking with a reminder expires from the store.
type ReminderDue struct {
	Version   string `json:"version"`
	Type      string `json:"type"`
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	TTL       int64  `json:"ttl"`
}

// NewReminderDue fills the fixed version and type fields.
func NewReminderDue(bookingID, userID string, ttl int64) ReminderDue {
	return ReminderDue{
		Version:   ReminderVersion,
		Type:      ReminderDetailType,
		BookingID: bookingID,
		UserID:    userID,
		TTL:       ttl,
	}
}
