package models

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

const (
	// DefaultReminderLeadSeconds applies when a create request omits the lead field.
	DefaultReminderLeadSeconds int64 = 900

	// MinReminderLeadSeconds is the smallest accepted reminder lead.
	MinReminderLeadSeconds int64 = 60
)

const (
	ReminderSource     = "booking.reminder"
	ReminderDetailType = "ReminderDue"
	ReminderVersion    = "1.0"
)

// Store attribute names shared by every backend and the change-stream image.
const (
	AttrBookingID  = "booking_id"
	AttrUserID     = "user_id"
	AttrResourceID = "resource_id"
	AttrStartTime  = "start_time"
	AttrEndTime    = "end_time"
	AttrTTL        = "ttl"
	AttrStatus     = "status"
)
