package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// AcceptAppointment grants the appointment its slot. In one transaction it
// re-reads the appointment, claims the slot block and cancels every other
// pending request for the same slot.
func (s *Service) AcceptAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var accepted *Appointment

	err := s.inTx(ctx, "accept", func(ctx context.Context, tx Tx, changes *changeSet) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusPendingApproval {
			return fmt.Errorf("%w: cannot accept a %s appointment", ErrInvalidState, appt.Status)
		}
		if appt.Date.IsZero() || appt.Time == "" {
			return ErrMissingData
		}

		block, err := tx.GetSlotBlock(ctx, appt.Date, appt.Time)
		switch {
		case err == nil && block.AppointmentID != appt.ID:
			return ErrSlotTaken
		case err != nil && !errors.Is(err, ErrSlotBlockNotFound):
			return fmt.Errorf("check slot block: %w", err)
		}

		now := s.now()
		appt.Status = StatusAccepted
		appt.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, *appt, StatusPendingApproval); err != nil {
			return fmt.Errorf("accept appointment: %w", err)
		}

		if err := tx.PutSlotBlock(ctx, SlotBlock{
			Date:          appt.Date,
			Time:          appt.Time,
			AppointmentID: appt.ID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		rivals, err := tx.ListAppointmentsForSlot(ctx, appt.Date, appt.Time, StatusPendingApproval)
		if err != nil {
			return err
		}
		cancelled := 0
		for i := range rivals {
			if rivals[i].ID == appt.ID {
				continue
			}
			if err := s.cancel(ctx, tx, changes, &rivals[i], ReasonSlotFilled); err != nil {
				return err
			}
			cancelled++
		}

		accepted = appt
		return s.logEvent(ctx, tx, changes, EventAppointmentAccepted, appt, map[string]any{
			"date":             appt.Date,
			"time":             appt.Time,
			"rivals_cancelled": cancelled,
		})
	})
	if err != nil {
		return nil, err
	}

	return accepted, nil
}

// DenyOrCancelAppointment cancels the appointment and frees its slot if it
// was accepted. Cancelling a terminal appointment fails with ErrInvalidState
// and changes nothing.
func (s *Service) DenyOrCancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var cancelled *Appointment

	err := s.inTx(ctx, "cancel", func(ctx context.Context, tx Tx, changes *changeSet) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.cancel(ctx, tx, changes, appt, reason); err != nil {
			return err
		}
		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// CompleteAppointment closes an accepted session with its summary and frees
// the slot block.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error) {
	var completed *Appointment

	err := s.inTx(ctx, "complete", func(ctx context.Context, tx Tx, changes *changeSet) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(appt.Status, StatusCompleted) {
			return fmt.Errorf("%w: cannot complete a %s appointment", ErrInvalidState, appt.Status)
		}

		if err := s.releaseBlock(ctx, tx, appt); err != nil {
			return err
		}

		from := appt.Status
		appt.Status = StatusCompleted
		appt.Summary = summary
		appt.UpdatedAt = s.now()
		if err := tx.UpdateAppointment(ctx, *appt, from); err != nil {
			return fmt.Errorf("complete appointment: %w", err)
		}

		completed = appt
		return s.logEvent(ctx, tx, changes, EventAppointmentCompleted, appt, map[string]any{})
	})
	if err != nil {
		return nil, err
	}

	return completed, nil
}

// cancel is the single cancellation primitive. It must run inside the
// transaction of whatever triggered it.
func (s *Service) cancel(ctx context.Context, tx Tx, changes *changeSet, appt *Appointment, reason string) error {
	if !CanTransition(appt.Status, StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidState, appt.Status)
	}

	if err := s.releaseBlock(ctx, tx, appt); err != nil {
		return err
	}

	from := appt.Status
	appt.Status = StatusCancelled
	appt.CancelReason = reason
	appt.UpdatedAt = s.now()
	if err := tx.UpdateAppointment(ctx, *appt, from); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}

	return s.logEvent(ctx, tx, changes, EventAppointmentCancelled, appt, map[string]any{
		"from":   from,
		"reason": reason,
	})
}

// ReconcileScheduleEdit replaces the daily schedule for date. Live
// appointments whose time is no longer offered are cancelled in the same
// transaction. It returns the cancelled appointments.
func (s *Service) ReconcileScheduleEdit(ctx context.Context, date Date, slots []string) ([]Appointment, error) {
	date, err := ParseDate(date.String())
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeSlots(slots)
	if err != nil {
		return nil, err
	}

	var orphaned []Appointment
	err = s.inTx(ctx, "reconcile", func(ctx context.Context, tx Tx, changes *changeSet) error {
		var err error
		orphaned, err = s.reconcileDate(ctx, tx, changes, date, normalized)
		if err != nil {
			return err
		}

		if err := tx.PutDailySchedule(ctx, DailySchedule{Date: date, Slots: normalized, UpdatedAt: s.now()}); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, changes, EventScheduleUpdated, nil, map[string]any{
			"date":      date,
			"slots":     normalized,
			"cancelled": len(orphaned),
		})
	})
	if err != nil {
		return nil, err
	}

	return orphaned, nil
}

// ClearScheduleOverride drops the override for date so it falls back to the
// weekly template, cancelling whatever the template no longer offers.
func (s *Service) ClearScheduleOverride(ctx context.Context, date Date) ([]Appointment, error) {
	date, err := ParseDate(date.String())
	if err != nil {
		return nil, err
	}

	var orphaned []Appointment
	err = s.inTx(ctx, "clear-override", func(ctx context.Context, tx Tx, changes *changeSet) error {
		tpl, err := tx.GetWeeklyTemplate(ctx)
		if err != nil {
			return err
		}

		orphaned, err = s.reconcileDate(ctx, tx, changes, date, tpl.SlotsFor(date))
		if err != nil {
			return err
		}

		if err := tx.DeleteDailySchedule(ctx, date); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, changes, EventScheduleUpdated, nil, map[string]any{
			"date":      date,
			"cleared":   true,
			"cancelled": len(orphaned),
		})
	})
	if err != nil {
		return nil, err
	}

	return orphaned, nil
}

func (s *Service) reconcileDate(ctx context.Context, tx Tx, changes *changeSet, date Date, slots []string) ([]Appointment, error) {
	live, err := tx.ListAppointmentsOnDate(ctx, date, StatusPendingApproval, StatusAccepted)
	if err != nil {
		return nil, err
	}

	var orphaned []Appointment
	for i := range live {
		if containsSlot(slots, live[i].Time) {
			continue
		}
		if err := s.cancel(ctx, tx, changes, &live[i], ReasonScheduleUpdated); err != nil {
			return nil, err
		}
		orphaned = append(orphaned, live[i])
	}
	return orphaned, nil
}

// FanOutResult summarizes a template fan-out.
type FanOutResult struct {
	From      Date
	Days      int
	Written   int
	Cancelled []Appointment
	Failed    map[Date]error
}

// SaveWeeklyTemplate stores the template and materializes it as daily
// schedules for the configured horizon, reconciling each date in its own
// transaction. Existing overrides in the horizon are replaced.
func (s *Service) SaveWeeklyTemplate(ctx context.Context, days map[string][]string) (*FanOutResult, error) {
	tpl := WeeklyTemplate{Days: make(map[string][]string, len(Weekdays))}
	for day, slots := range days {
		if !isWeekday(day) {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRequest, day)
		}
		normalized, err := NormalizeSlots(slots)
		if err != nil {
			return nil, err
		}
		tpl.Days[day] = normalized
	}

	err := s.inTx(ctx, "save-template", func(ctx context.Context, tx Tx, changes *changeSet) error {
		tpl.UpdatedAt = s.now()
		if err := tx.PutWeeklyTemplate(ctx, tpl); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, changes, EventTemplateUpdated, nil, map[string]any{
			"days": tpl.Days,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.fanOut(ctx, tpl, true)
}

// ExtendScheduleHorizon writes daily schedules from the template for dates
// in the horizon that have none yet. Existing overrides are left alone.
func (s *Service) ExtendScheduleHorizon(ctx context.Context) (*FanOutResult, error) {
	tpl, err := s.repo.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return s.fanOut(ctx, *tpl, false)
}

func (s *Service) fanOut(ctx context.Context, tpl WeeklyTemplate, overwrite bool) (*FanOutResult, error) {
	res := &FanOutResult{
		From:   s.today(),
		Days:   s.cfg.FanOutDays,
		Failed: map[Date]error{},
	}

	for i := 0; i < s.cfg.FanOutDays; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		date := res.From.AddDays(i)
		slots := tpl.SlotsFor(date)
		if slots == nil {
			slots = []string{}
		}

		if overwrite {
			cancelled, err := s.ReconcileScheduleEdit(ctx, date, slots)
			if err != nil {
				log.Printf("fan-out date=%s error: %v", date, err)
				res.Failed[date] = err
				continue
			}
			res.Written++
			res.Cancelled = append(res.Cancelled, cancelled...)
			continue
		}

		written := false
		err := s.inTx(ctx, "extend-horizon", func(ctx context.Context, tx Tx, changes *changeSet) error {
			written = false
			if _, err := tx.GetDailySchedule(ctx, date); err == nil {
				return nil
			} else if !errors.Is(err, ErrScheduleNotFound) {
				return err
			}
			if err := tx.PutDailySchedule(ctx, DailySchedule{Date: date, Slots: slots, UpdatedAt: s.now()}); err != nil {
				return err
			}
			written = true
			return s.logEvent(ctx, tx, changes, EventScheduleUpdated, nil, map[string]any{
				"date":  date,
				"slots": slots,
			})
		})
		if err != nil {
			log.Printf("extend horizon date=%s error: %v", date, err)
			res.Failed[date] = err
			continue
		}
		if written {
			res.Written++
		}
	}

	return res, nil
}

func isWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}
