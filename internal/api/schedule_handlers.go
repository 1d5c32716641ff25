package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

func listSlotsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"slots": appointment.SlotLabels})
	}
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := appointment.ParseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		to := from
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = appointment.ParseDate(v); err != nil {
				writeServiceError(w, err)
				return
			}
		}

		days, err := svc.Availability(r.Context(), from, to)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]DayAvailabilityResponse, 0, len(days))
		for _, d := range days {
			out = append(out, DayAvailabilityResponse{
				Date:     d.Date.String(),
				Slots:    nonNil(d.Slots),
				Blocked:  nonNil(d.Blocked),
				Bookable: d.Bookable,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"days": out})
	}
}

func getTemplateHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpl, err := svc.WeeklyTemplate(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTemplateResponse(*tpl))
	}
}

func saveTemplateHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TemplateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := svc.SaveWeeklyTemplate(r.Context(), req.Days)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		tpl, err := svc.WeeklyTemplate(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		failed := make([]string, 0, len(res.Failed))
		for d := range res.Failed {
			failed = append(failed, d.String())
		}
		sort.Strings(failed)

		writeJSON(w, http.StatusOK, FanOutResponse{
			Template:  toTemplateResponse(*tpl),
			From:      res.From.String(),
			Days:      res.Days,
			Written:   res.Written,
			Failed:    failed,
			Cancelled: toAppointmentResponses(res.Cancelled),
		})
	}
}

func getDayScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := scheduleDate(w, r)
		if !ok {
			return
		}

		slots, err := svc.EffectiveSlots(r.Context(), date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{Date: date.String(), Slots: nonNil(slots)})
	}
}

func putDayScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := scheduleDate(w, r)
		if !ok {
			return
		}
		var req ScheduleRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		cancelled, err := svc.ReconcileScheduleEdit(r.Context(), date, req.Slots)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		slots, _ := appointment.NormalizeSlots(req.Slots)

		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:      date.String(),
			Slots:     slots,
			Cancelled: toAppointmentResponses(cancelled),
		})
	}
}

func deleteDayScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := scheduleDate(w, r)
		if !ok {
			return
		}

		cancelled, err := svc.ClearScheduleOverride(r.Context(), date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		slots, err := svc.EffectiveSlots(r.Context(), date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:      date.String(),
			Slots:     nonNil(slots),
			Cancelled: toAppointmentResponses(cancelled),
		})
	}
}

func scheduleDate(w http.ResponseWriter, r *http.Request) (appointment.Date, bool) {
	date, err := appointment.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return date, true
}

func toTemplateResponse(t appointment.WeeklyTemplate) TemplateResponse {
	resp := TemplateResponse{Days: map[string][]string{}}
	for _, day := range appointment.Weekdays {
		resp.Days[day] = nonNil(t.Days[day])
	}
	if !t.UpdatedAt.IsZero() {
		at := t.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
