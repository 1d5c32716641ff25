package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

const (
	defaultDenyReason   = "denied by counselor"
	defaultCancelReason = "cancelled by requester"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		caller, _ := GetIdentity(r.Context())
		studentID := caller.UserID
		if req.StudentID != "" && req.StudentID != caller.UserID {
			if !caller.Privileged() {
				writeError(w, http.StatusForbidden, "forbidden", "cannot book on behalf of another student")
				return
			}
			studentID = req.StudentID
		}

		studentName := req.StudentName
		if studentName == "" && studentID == caller.UserID {
			studentName = caller.Name
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.NewAppointment{
			StudentID:     studentID,
			StudentNumber: req.StudentNumber,
			StudentName:   studentName,
			Reason:        req.Reason,
			Mode:          appointment.SessionMode(req.Mode),
			Date:          appointment.Date(req.Date),
			Time:          req.Time,
			Notes:         req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		caller, _ := GetIdentity(r.Context())

		f := appointment.ListFilter{
			StudentID: q.Get("student_id"),
			Status:    appointment.AppointmentStatus(q.Get("status")),
			Time:      q.Get("time"),
		}
		if !caller.Privileged() {
			f.StudentID = caller.UserID
		}

		var err error
		if v := q.Get("from"); v != "" {
			if f.From, err = appointment.ParseDate(v); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		if v := q.Get("to"); v != "" {
			if f.To, err = appointment.ParseDate(v); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		if v := q.Get("limit"); v != "" {
			if f.Limit, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
		}
		if v := q.Get("offset"); v != "" {
			if f.Offset, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
				return
			}
		}

		list, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		limit := f.Limit
		switch {
		case limit <= 0:
			limit = 20
		case limit > 100:
			limit = 100
		}
		writeJSON(w, http.StatusOK, ListAppointmentsResponse{
			Appointments: toAppointmentResponses(list),
			Limit:        limit,
			Offset:       max(f.Offset, 0),
		})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadOwnedAppointment(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func acceptAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.AcceptAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func denyAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		reason, ok := cancelReason(w, r, defaultDenyReason)
		if !ok {
			return
		}

		appt, err := svc.DenyOrCancelAppointment(r.Context(), id, reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// cancelAppointmentHandler lets a student withdraw their own request.
// Counselors may cancel any appointment.
func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existing, ok := loadOwnedAppointment(w, r, svc)
		if !ok {
			return
		}
		reason, ok := cancelReason(w, r, defaultCancelReason)
		if !ok {
			return
		}

		appt, err := svc.SetStatus(r.Context(), existing.ID, appointment.StatusCancelled, reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req CompleteRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.CompleteAppointment(r.Context(), id, req.Summary)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateNotesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req NotesRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.UpdateNotes(r.Context(), id, req.Notes)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// loadOwnedAppointment fetches the appointment and hides it from students
// who do not own it.
func loadOwnedAppointment(w http.ResponseWriter, r *http.Request, svc *appointment.Service) (*appointment.Appointment, bool) {
	id, ok := appointmentID(w, r)
	if !ok {
		return nil, false
	}

	appt, err := svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}

	caller, _ := GetIdentity(r.Context())
	if !caller.Privileged() && appt.StudentID != caller.UserID {
		writeServiceError(w, appointment.ErrAppointmentNotFound)
		return nil, false
	}
	return appt, true
}

// cancelReason reads an optional {"reason": "..."} body.
func cancelReason(w http.ResponseWriter, r *http.Request, def string) (string, bool) {
	var req CancelRequest
	found, ok := decodeOptional(w, r, &req)
	if !ok {
		return "", false
	}
	if !found || req.Reason == "" {
		return def, true
	}
	return req.Reason, true
}
