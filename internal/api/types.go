package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	StudentID     string `json:"student_id" validate:"omitempty,max=128"`
	StudentNumber string `json:"student_number" validate:"max=32"`
	StudentName   string `json:"student_name" validate:"max=120"`
	Reason        string `json:"reason" validate:"required,max=500"`
	Mode          string `json:"mode" validate:"omitempty,oneof=in_person online"`
	Date          string `json:"date" validate:"required,isodate"`
	Time          string `json:"time" validate:"required,slotlabel"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CompleteRequest struct {
	Summary string `json:"summary" validate:"required,max=4000"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

type ScheduleRequest struct {
	Slots []string `json:"slots" validate:"required,dive,slotlabel"`
}

type TemplateRequest struct {
	Days map[string][]string `json:"days" validate:"required,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys,dive,slotlabel"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	StudentID     string    `json:"student_id"`
	StudentNumber string    `json:"student_number,omitempty"`
	StudentName   string    `json:"student_name,omitempty"`
	Reason        string    `json:"reason"`
	Mode          string    `json:"mode"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	StatusLabel   string    `json:"status_label"`
	Notes         string    `json:"notes,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ScheduleResponse struct {
	Date      string                `json:"date"`
	Slots     []string              `json:"slots"`
	Cancelled []AppointmentResponse `json:"cancelled,omitempty"`
}

type TemplateResponse struct {
	Days      map[string][]string `json:"days"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
}

type FanOutResponse struct {
	Template  TemplateResponse      `json:"template"`
	From      string                `json:"from"`
	Days      int                   `json:"days"`
	Written   int                   `json:"written"`
	Failed    []string              `json:"failed,omitempty"`
	Cancelled []AppointmentResponse `json:"cancelled,omitempty"`
}

type DayAvailabilityResponse struct {
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
	Blocked  []string `json:"blocked"`
	Bookable bool     `json:"bookable"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		StudentID:     a.StudentID,
		StudentNumber: a.StudentNumber,
		StudentName:   a.StudentName,
		Reason:        a.Reason,
		Mode:          string(a.Mode),
		Date:          a.Date.String(),
		Time:          a.Time,
		Status:        string(a.Status),
		StatusLabel:   a.Status.Label(),
		Notes:         a.Notes,
		CancelReason:  a.CancelReason,
		Summary:       a.Summary,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
