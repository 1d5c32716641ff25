package appointment

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// SlotLabels is the ordered set of bookable time labels shared by schedules
// and appointments.
var SlotLabels = []string{
	"08:00 AM", "08:30 AM",
	"09:00 AM", "09:30 AM",
	"10:00 AM", "10:30 AM",
	"11:00 AM", "11:30 AM",
	"12:00 PM", "12:30 PM",
	"01:00 PM", "01:30 PM",
	"02:00 PM", "02:30 PM",
	"03:00 PM", "03:30 PM",
	"04:00 PM", "04:30 PM",
	"05:00 PM",
}

var slotIndex = func() map[string]int {
	m := make(map[string]int, len(SlotLabels))
	for i, l := range SlotLabels {
		m[l] = i
	}
	return m
}()

// Weekdays are the keys of a WeeklyTemplate.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func IsSlotLabel(label string) bool {
	_, ok := slotIndex[label]
	return ok
}

// NormalizeSlots validates every label and returns them in canonical order
// without duplicates. A nil or empty input yields an empty, non-nil slice.
func NormalizeSlots(labels []string) ([]string, error) {
	seen := make([]bool, len(SlotLabels))
	for _, l := range labels {
		i, ok := slotIndex[l]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, l)
		}
		seen[i] = true
	}

	out := make([]string, 0, len(labels))
	for i, ok := range seen {
		if ok {
			out = append(out, SlotLabels[i])
		}
	}
	return out, nil
}

func containsSlot(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// Date is a calendar day in YYYY-MM-DD form. It carries no time zone.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf returns the local calendar day of t.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

func (d Date) String() string { return string(d) }

func (d Date) IsZero() bool { return d == "" }

func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

// Weekday returns the lower-case weekday name used as a template key.
func (d Date) Weekday() string {
	return strings.ToLower(d.Time().Weekday().String())
}

func (d Date) AddDays(n int) Date {
	return Date(d.Time().AddDate(0, 0, n).Format(dateLayout))
}

func (d Date) Before(o Date) bool { return d < o }

// Bookable reports whether new requests may target d. Past days still resolve
// to their effective slots but are never bookable.
func Bookable(d, today Date) bool {
	return !d.Before(today)
}
