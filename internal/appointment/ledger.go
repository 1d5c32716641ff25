package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateAppointment records a new booking request. Requests always start in
// pending approval and must target a slot the date actually offers.
func (s *Service) CreateAppointment(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if strings.TrimSpace(req.StudentID) == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidRequest)
	}
	if req.Date.IsZero() || req.Time == "" {
		return nil, ErrMissingData
	}
	date, err := ParseDate(req.Date.String())
	if err != nil {
		return nil, err
	}
	if !IsSlotLabel(req.Time) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, req.Time)
	}
	switch req.Mode {
	case "":
		req.Mode = ModeInPerson
	case ModeInPerson, ModeOnline:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if !Bookable(date, s.today()) {
		return nil, ErrPastDate
	}

	var created *Appointment
	err = s.inTx(ctx, "create", func(ctx context.Context, tx Tx, changes *changeSet) error {
		slots, err := effectiveSlotsTx(ctx, tx, date)
		if err != nil {
			return err
		}
		if !containsSlot(slots, req.Time) {
			return ErrSlotUnavailable
		}

		if _, err := tx.GetSlotBlock(ctx, date, req.Time); err == nil {
			return ErrSlotTaken
		} else if !errors.Is(err, ErrSlotBlockNotFound) {
			return fmt.Errorf("check slot block: %w", err)
		}

		now := s.now()
		appt := Appointment{
			ID:            uuid.New(),
			StudentID:     req.StudentID,
			StudentNumber: req.StudentNumber,
			StudentName:   req.StudentName,
			Reason:        req.Reason,
			Mode:          req.Mode,
			Date:          date,
			Time:          req.Time,
			Status:        StatusPendingApproval,
			Notes:         req.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create pending appointment: %w", err)
		}

		created = &appt
		return s.logEvent(ctx, tx, changes, EventAppointmentCreated, &appt, map[string]any{
			"student_id": appt.StudentID,
			"date":       appt.Date,
			"time":       appt.Time,
		})
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments queries by student, status, date range and slot time.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, f.Status)
	}
	if f.Time != "" && !IsSlotLabel(f.Time) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, f.Time)
	}

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// SetStatus is the ledger's generic status entry point. Only cancellation is
// reachable from here; acceptance and completion have their own operations.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus, reason string) (*Appointment, error) {
	switch status {
	case StatusCancelled:
		return s.DenyOrCancelAppointment(ctx, id, reason)
	case StatusAccepted, StatusCompleted:
		return nil, fmt.Errorf("%w: %s must go through its dedicated operation", ErrInvalidState, status)
	default:
		return nil, fmt.Errorf("%w: cannot set status %q", ErrInvalidState, status)
	}
}

// UpdateNotes replaces the administrative notes. Allowed in every status.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	var updated *Appointment
	err := s.inTx(ctx, "notes", func(ctx context.Context, tx Tx, changes *changeSet) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		appt.Notes = notes
		appt.UpdatedAt = s.now()
		if err := tx.UpdateAppointment(ctx, *appt, appt.Status); err != nil {
			return fmt.Errorf("update notes: %w", err)
		}

		updated = appt
		return s.logEvent(ctx, tx, changes, EventAppointmentNoted, appt, map[string]any{})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAppointment removes the record and, if it held its slot, the block.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, "delete", func(ctx context.Context, tx Tx, changes *changeSet) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		if err := s.releaseBlock(ctx, tx, appt); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return err
		}

		return s.logEvent(ctx, tx, changes, EventAppointmentDeleted, appt, map[string]any{
			"status": appt.Status,
		})
	})
}

// releaseBlock deletes the slot block for appt if appt is the holder.
func (s *Service) releaseBlock(ctx context.Context, tx Tx, appt *Appointment) error {
	if appt.Status != StatusAccepted || appt.Date.IsZero() || appt.Time == "" {
		return nil
	}

	block, err := tx.GetSlotBlock(ctx, appt.Date, appt.Time)
	if errors.Is(err, ErrSlotBlockNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load slot block: %w", err)
	}
	if block.AppointmentID != appt.ID {
		return nil
	}

	if err := tx.DeleteSlotBlock(ctx, appt.Date, appt.Time); err != nil {
		return fmt.Errorf("release slot block: %w", err)
	}
	return nil
}
