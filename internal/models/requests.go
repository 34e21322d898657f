package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BookingCreate is the payload accepted by the create operation.
type BookingCreate struct {
	UserID              string
	ResourceID          string
	StartTime           time.Time
	EndTime             time.Time
	ReminderLeadSeconds OptionalInt
}

// LeadSeconds resolves the effective reminder lead: the default when the field
// was omitted, nil when it was explicitly null.
func (c BookingCreate) LeadSeconds(defaultLead int64) *int64 {
	if !c.ReminderLeadSeconds.Set {
		return &defaultLead
	}
	return c.ReminderLeadSeconds.Ptr()
}

// Validate checks the string fields and the lead lower bound. Timestamp
// presence is enforced while decoding.
func (c BookingCreate) Validate(minLead int64) error {
	verr := &ValidationError{}
	if strings.TrimSpace(c.UserID) == "" {
		verr.Add(AttrUserID, "must not be empty")
	}
	if strings.TrimSpace(c.ResourceID) == "" {
		verr.Add(AttrResourceID, "must not be empty")
	}
	validateLead(verr, c.ReminderLeadSeconds, minLead)
	return verr.OrNil()
}

// BookingUpdate is a partial update. Nil fields are left untouched; the lead
// field keeps the absent/null/value distinction.
type BookingUpdate struct {
	ResourceID          *string
	StartTime           *time.Time
	EndTime             *time.Time
	ReminderLeadSeconds OptionalInt
}

// IsEmpty reports whether no field was supplied.
func (u BookingUpdate) IsEmpty() bool {
	return u.ResourceID == nil && u.StartTime == nil && u.EndTime == nil && !u.ReminderLeadSeconds.Set
}

// Validate checks supplied fields only.
func (u BookingUpdate) Validate(minLead int64) error {
	verr := &ValidationError{}
	if u.ResourceID != nil && strings.TrimSpace(*u.ResourceID) == "" {
		verr.Add(AttrResourceID, "must not be empty")
	}
	validateLead(verr, u.ReminderLeadSeconds, minLead)
	return verr.OrNil()
}

func validateLead(verr *ValidationError, lead OptionalInt, minLead int64) {
	if lead.Valid && lead.Value < minLead {
		verr.Add("reminder_lead_seconds", fmt.Sprintf("must be greater than or equal to %d", minLead))
	}
}

// DecodeBookingCreate parses a JSON create payload, attributing decode errors to fields.
func DecodeBookingCreate(data []byte) (BookingCreate, error) {
	var c BookingCreate
	fields, err := decodeObject(data)
	if err != nil {
		return c, err
	}

	verr := &ValidationError{}
	c.UserID = decodeString(verr, fields, AttrUserID, true)
	c.ResourceID = decodeString(verr, fields, AttrResourceID, true)
	if t := decodeTime(verr, fields, AttrStartTime, true); t != nil {
		c.StartTime = *t
	}
	if t := decodeTime(verr, fields, AttrEndTime, true); t != nil {
		c.EndTime = *t
	}
	c.ReminderLeadSeconds = decodeLead(verr, fields)

	return c, verr.OrNil()
}

// DecodeBookingUpdate parses a JSON partial update. Null for resource_id,
// start_time or end_time counts as not supplied.
func DecodeBookingUpdate(data []byte) (BookingUpdate, error) {
	var u BookingUpdate
	if len(bytes.TrimSpace(data)) == 0 {
		return u, nil
	}
	fields, err := decodeObject(data)
	if err != nil {
		return u, err
	}

	verr := &ValidationError{}
	if raw, ok := fields[AttrResourceID]; ok && !isNull(raw) {
		s := decodeString(verr, fields, AttrResourceID, false)
		u.ResourceID = &s
	}
	u.StartTime = decodeTime(verr, fields, AttrStartTime, false)
	u.EndTime = decodeTime(verr, fields, AttrEndTime, false)
	u.ReminderLeadSeconds = decodeLead(verr, fields)

	return u, verr.OrNil()
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		verr := &ValidationError{}
		verr.Add("body", "expected a JSON object")
		return nil, verr
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(verr *ValidationError, fields map[string]json.RawMessage, name string, required bool) string {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		if required {
			verr.Add(name, "field required")
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.Add(name, "must be a string")
		return ""
	}
	return s
}

func decodeTime(verr *ValidationError, fields map[string]json.RawMessage, name string, required bool) *time.Time {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		if required {
			verr.Add(name, "field required")
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.Add(name, "must be an ISO-8601 string")
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		verr.Add(name, err.Error())
		return nil
	}
	return &t
}

func decodeLead(verr *ValidationError, fields map[string]json.RawMessage) OptionalInt {
	var lead OptionalInt
	raw, ok := fields["reminder_lead_seconds"]
	if !ok {
		return lead
	}
	if err := json.Unmarshal(raw, &lead); err != nil {
		verr.Add("reminder_lead_seconds", "must be an integer or null")
		return OptionalInt{Set: true}
	}
	return lead
}
