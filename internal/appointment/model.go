package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPendingApproval AppointmentStatus = "pending_approval"
	StatusAccepted        AppointmentStatus = "accepted"
	StatusCancelled       AppointmentStatus = "cancelled"
	StatusCompleted       AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusAccepted, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Label is the human readable form shown on dashboards.
func (s AppointmentStatus) Label() string {
	switch s {
	case StatusPendingApproval:
		return "Pending Approval"
	case StatusAccepted:
		return "Accepted"
	case StatusCancelled:
		return "Cancelled"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPendingApproval: {StatusAccepted, StatusCancelled},
	StatusAccepted:        {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether the appointment state machine allows from -> to.
func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type SessionMode string

const (
	ModeInPerson SessionMode = "in_person"
	ModeOnline   SessionMode = "online"
)

type Appointment struct {
	ID            uuid.UUID
	StudentID     string
	StudentNumber string
	StudentName   string
	Reason        string
	Mode          SessionMode
	Date          Date
	Time          string
	Status        AppointmentStatus
	Notes         string
	CancelReason  string
	Summary       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotBlock marks (Date, Time) as held by an accepted appointment.
type SlotBlock struct {
	Date          Date
	Time          string
	AppointmentID uuid.UUID
	CreatedAt     time.Time
}

// DailySchedule is an explicit slot list for one date. An empty Slots list
// means no availability that day.
type DailySchedule struct {
	Date      Date
	Slots     []string
	UpdatedAt time.Time
}

// WeeklyTemplate maps weekday names to their recurring slot lists.
type WeeklyTemplate struct {
	Days      map[string][]string
	UpdatedAt time.Time
}

func (t WeeklyTemplate) SlotsFor(d Date) []string {
	if t.Days == nil {
		return nil
	}
	return t.Days[d.Weekday()]
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type NewAppointment struct {
	StudentID     string
	StudentNumber string
	StudentName   string
	Reason        string
	Mode          SessionMode
	Date          Date
	Time          string
	Notes         string
}

type ListFilter struct {
	StudentID string
	Status    AppointmentStatus
	From      Date
	To        Date
	Time      string
	Limit     int
	Offset    int
}

// DayAvailability is the read model served to booking calendars.
type DayAvailability struct {
	Date     Date
	Slots    []string
	Blocked  []string
	Bookable bool
}
