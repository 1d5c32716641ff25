package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/config"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentAccepted  = "APPOINTMENT_ACCEPTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
	EventAppointmentNoted     = "APPOINTMENT_NOTES_UPDATED"
	EventScheduleUpdated      = "SCHEDULE_UPDATED"
	EventTemplateUpdated      = "TEMPLATE_UPDATED"
)

const (
	ReasonSlotFilled      = "slot filled by another appointment"
	ReasonScheduleUpdated = "schedule updated; slot removed"
)

var (
	ErrInvalidState    = errors.New("invalid status transition")
	ErrMissingData     = errors.New("appointment is missing date or time")
	ErrSlotTaken       = errors.New("slot already held by another accepted appointment")
	ErrInvalidSlot     = errors.New("unknown slot label")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidRequest  = errors.New("invalid appointment request")
	ErrPastDate        = errors.New("date is in the past")
	ErrSlotUnavailable = errors.New("slot is not offered on that date")
)

// ChangeEvent is published on the live feed after a transaction commits.
type ChangeEvent struct {
	Type          string            `json:"type"`
	AppointmentID *uuid.UUID        `json:"appointment_id,omitempty"`
	Date          Date              `json:"date,omitempty"`
	Time          string            `json:"time,omitempty"`
	Status        AppointmentStatus `json:"status,omitempty"`
	At            time.Time         `json:"at"`
}

// Notifier receives committed changes. Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCache(c *AvailabilityCache) Option {
	return func(s *Service) { s.cache = c }
}

type Service struct {
	repo     Repository
	notifier Notifier
	cache    *AvailabilityCache
	cfg      config.Config
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, cfg config.Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.FanOutDays <= 0 {
		cfg.FanOutDays = 60
	}

	s := &Service{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() Date {
	return DateOf(s.now().In(s.cfg.Location))
}

// changeSet collects the notifications of one transaction attempt.
type changeSet struct {
	events []ChangeEvent
}

func (c *changeSet) add(ev ChangeEvent) {
	c.events = append(c.events, ev)
}

// inTx runs fn atomically, retrying on ErrTransactionContention with
// exponential backoff. Business errors are returned on the first attempt.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx, changes *changeSet) error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.TxMaxRetries; attempt++ {
		if attempt > 0 {
			if werr := s.backoff(ctx, attempt); werr != nil {
				return werr
			}
		}

		changes := &changeSet{}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return fn(ctx, tx, changes)
		})
		if err == nil {
			s.publish(ctx, changes)
			return nil
		}
		if !errors.Is(err, ErrTransactionContention) {
			return err
		}
		log.Printf("op=%s attempt=%d contention: %v", op, attempt+1, err)
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, s.cfg.TxMaxRetries+1, err)
}

func (s *Service) backoff(ctx context.Context, attempt int) error {
	base := s.cfg.TxRetryBackoff
	if base <= 0 {
		return ctx.Err()
	}
	wait := base << (attempt - 1)
	wait += time.Duration(rand.Int63n(int64(base)))

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) publish(ctx context.Context, changes *changeSet) {
	for _, ev := range changes.events {
		if s.cache != nil {
			if ev.Type == EventTemplateUpdated {
				s.cache.Purge()
			} else if !ev.Date.IsZero() {
				s.cache.Invalidate(ev.Date)
			}
		}
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Publish(ctx, ev); err != nil {
			log.Printf("failed to publish %s event: %v", ev.Type, err)
		}
	}
}

// logEvent writes an event row inside tx and queues the matching change
// notification. A failed insert aborts the transaction.
func (s *Service) logEvent(ctx context.Context, tx Tx, changes *changeSet, eventType string, appt *Appointment, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	now := s.now()
	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	}
	change := ChangeEvent{Type: eventType, At: now}

	if appt != nil {
		id := appt.ID
		ev.AppointmentID = &id
		change.AppointmentID = &id
		change.Date = appt.Date
		change.Time = appt.Time
		change.Status = appt.Status
	} else if d, ok := payload["date"].(Date); ok {
		change.Date = d
	}

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	changes.add(change)
	return nil
}
