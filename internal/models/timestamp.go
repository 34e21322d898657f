package models

import (
	"fmt"
	"strings"
	"time"
)

// StoreTimeLayout is the ISO-8601 rendering used for persisted timestamps.
// UTC renders as "+00:00" and whole seconds drop the fraction.
const StoreTimeLayout = "2006-01-02T15:04:05.999999-07:00"

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without an offset.
// Timestamps without an offset are read as UTC. The result is always in UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	// Offsets without a colon, e.g. +0000.
	if t, err := time.Parse("2006-01-02T15:04:05.999999999-0700", s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", raw)
}

// FormatTimestamp renders t in UTC using StoreTimeLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(StoreTimeLayout)
}

// NormalizeUTC converts t to UTC, dropping any monotonic reading.
func NormalizeUTC(t time.Time) time.Time {
	return t.Round(0).UTC()
}
