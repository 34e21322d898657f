package models

import "strconv"

// Change-stream event kinds.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Attribute value types carried in a change image.
const (
	TypeString = "S"
	TypeNumber = "N"
)

// ImageValue is one typed attribute of a change-stream item image.
type ImageValue struct {
	Type  string
	Value string
}

// Image is the attribute snapshot of an item.
type Image map[string]ImageValue

// String returns the attribute value when it is string typed.
func (img Image) String(name string) (string, bool) {
	v, ok := img[name]
	if !ok || v.Type != TypeString {
		return "", false
	}
	return v.Value, true
}

// Number returns the raw attribute value when it is number typed.
func (img Image) Number(name string) (string, bool) {
	v, ok := img[name]
	if !ok || v.Type != TypeNumber {
		return "", false
	}
	return v.Value, true
}

// ChangeRecord is one entry of a store change stream.
type ChangeRecord struct {
	EventID   string
	EventName string
	// SequenceNumber identifies the record for partial batch failure reporting.
	SequenceNumber string
	OldImage       Image
}

// ImageOf snapshots a booking the way the store holds it.
func ImageOf(b *Booking) Image {
	img := Image{
		AttrBookingID:  {Type: TypeString, Value: b.BookingID},
		AttrUserID:     {Type: TypeString, Value: b.UserID},
		AttrResourceID: {Type: TypeString, Value: b.ResourceID},
		AttrStartTime:  {Type: TypeString, Value: FormatTimestamp(b.StartTime)},
		AttrEndTime:    {Type: TypeString, Value: FormatTimestamp(b.EndTime)},
		AttrStatus:     {Type: TypeString, Value: b.Status},
	}
	if b.TTL != nil {
		img[AttrTTL] = ImageValue{Type: TypeNumber, Value: strconv.FormatInt(*b.TTL, 10)}
	}
	return img
}
