package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrScheduleNotFound    = errors.New("daily schedule not found")
	ErrSlotBlockNotFound   = errors.New("slot block not found")

	// ErrTransactionContention is returned by a Repository when a transaction
	// lost a race with a concurrent one. It is safe to retry.
	ErrTransactionContention = errors.New("transaction contention, please retry")
)

// Tx is the set of reads and writes available inside one atomic transaction.
// Implementations must give serializable semantics: two transactions that
// read and write the same slot cannot both commit.
type Tx interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) error
	// UpdateAppointment writes the mutable fields of a, provided the stored
	// status still equals from.
	UpdateAppointment(ctx context.Context, a Appointment, from AppointmentStatus) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	ListAppointmentsForSlot(ctx context.Context, date Date, time string, status AppointmentStatus) ([]Appointment, error)
	ListAppointmentsOnDate(ctx context.Context, date Date, statuses ...AppointmentStatus) ([]Appointment, error)

	GetSlotBlock(ctx context.Context, date Date, time string) (*SlotBlock, error)
	PutSlotBlock(ctx context.Context, b SlotBlock) error
	DeleteSlotBlock(ctx context.Context, date Date, time string) error

	GetDailySchedule(ctx context.Context, date Date) (*DailySchedule, error)
	PutDailySchedule(ctx context.Context, s DailySchedule) error
	DeleteDailySchedule(ctx context.Context, date Date) error

	// GetWeeklyTemplate returns an empty template when none has been saved.
	GetWeeklyTemplate(ctx context.Context) (*WeeklyTemplate, error)
	PutWeeklyTemplate(ctx context.Context, t WeeklyTemplate) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// WithTx runs fn inside one transaction. Either every write fn made is
	// committed or none is.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Display reads. These are not required to be consistent with each other.
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	ListDailySchedules(ctx context.Context, from, to Date) ([]DailySchedule, error)
	ListSlotBlocks(ctx context.Context, from, to Date) ([]SlotBlock, error)
	GetWeeklyTemplate(ctx context.Context) (*WeeklyTemplate, error)
}
