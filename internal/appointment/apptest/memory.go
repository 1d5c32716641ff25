// Package apptest provides an in-memory appointment.Repository for tests.
//
// Transactions are serialized behind one mutex and run against a copy of
// the state that replaces the live state only on success, which gives the
// same all-or-nothing, serializable behaviour the Postgres repository
// relies on.
package apptest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

type slotKey struct {
	date appointment.Date
	time string
}

type state struct {
	appointments map[uuid.UUID]appointment.Appointment
	blocks       map[slotKey]appointment.SlotBlock
	schedules    map[appointment.Date]appointment.DailySchedule
	template     *appointment.WeeklyTemplate
	events       []appointment.EventLog
}

func newState() *state {
	return &state{
		appointments: map[uuid.UUID]appointment.Appointment{},
		blocks:       map[slotKey]appointment.SlotBlock{},
		schedules:    map[appointment.Date]appointment.DailySchedule{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	for k, v := range s.schedules {
		v.Slots = append([]string{}, v.Slots...)
		c.schedules[k] = v
	}
	if s.template != nil {
		c.template = copyTemplate(*s.template)
	}
	c.events = append(c.events, s.events...)
	return c
}

func copyTemplate(t appointment.WeeklyTemplate) *appointment.WeeklyTemplate {
	out := &appointment.WeeklyTemplate{Days: map[string][]string{}, UpdatedAt: t.UpdatedAt}
	for k, v := range t.Days {
		out.Days[k] = append([]string{}, v...)
	}
	return out
}

// MemoryRepository implements appointment.Repository in memory.
type MemoryRepository struct {
	mu          sync.Mutex
	st          *state
	failCommits int
	commits     int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{st: newState()}
}

// FailNextCommits makes the next n transactions roll back with
// appointment.ErrTransactionContention after fn has run.
func (r *MemoryRepository) FailNextCommits(n int) {
	r.mu.Lock()
	r.failCommits = n
	r.mu.Unlock()
}

// Commits returns how many transactions committed.
func (r *MemoryRepository) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx appointment.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := r.st.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}

	if r.failCommits > 0 {
		r.failCommits--
		return fmt.Errorf("%w: injected", appointment.ErrTransactionContention)
	}

	r.st = work
	r.commits++
	return nil
}

// Seed stores appointments as-is, bypassing every check. It lets tests
// build states such as malformed records or pre-existing blocks.
func (r *MemoryRepository) Seed(appts ...appointment.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range appts {
		r.st.appointments[a.ID] = a
	}
}

func (r *MemoryRepository) SeedBlock(b appointment.SlotBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.blocks[slotKey{b.Date, b.Time}] = b
}

// Blocks returns a snapshot of every slot block.
func (r *MemoryRepository) Blocks() []appointment.SlotBlock {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]appointment.SlotBlock, 0, len(r.st.blocks))
	for _, b := range r.st.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// All returns a snapshot of every appointment.
func (r *MemoryRepository) All() []appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]appointment.Appointment, 0, len(r.st.appointments))
	for _, a := range r.st.appointments {
		out = append(out, a)
	}
	sortAppointments(out)
	return out
}

func (r *MemoryRepository) Events() []appointment.EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]appointment.EventLog{}, r.st.events...)
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memTx{st: r.st}).GetAppointment(ctx, id)
}

func (r *MemoryRepository) GetWeeklyTemplate(ctx context.Context) (*appointment.WeeklyTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memTx{st: r.st}).GetWeeklyTemplate(ctx)
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.Appointment
	for _, a := range r.st.appointments {
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && f.To.Before(a.Date) {
			continue
		}
		if f.Time != "" && a.Time != f.Time {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListDailySchedules(_ context.Context, from, to appointment.Date) ([]appointment.DailySchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.DailySchedule
	for d, s := range r.st.schedules {
		if d.Before(from) || to.Before(d) {
			continue
		}
		s.Slots = append([]string{}, s.Slots...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *MemoryRepository) ListSlotBlocks(_ context.Context, from, to appointment.Date) ([]appointment.SlotBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.SlotBlock
	for k, b := range r.st.blocks {
		if k.date.Before(from) || to.Before(k.date) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func sortAppointments(out []appointment.Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

type memTx struct {
	st *state
}

func (t *memTx) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a appointment.Appointment) error {
	if _, ok := t.st.appointments[a.ID]; ok {
		return fmt.Errorf("insert appointment: duplicate id %s", a.ID)
	}
	t.st.appointments[a.ID] = a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a appointment.Appointment, from appointment.AppointmentStatus) error {
	cur, ok := t.st.appointments[a.ID]
	if !ok || cur.Status != from {
		return appointment.ErrAppointmentNotFound
	}
	if a.Status == appointment.StatusAccepted {
		for _, other := range t.st.appointments {
			if other.ID != a.ID && other.Status == appointment.StatusAccepted &&
				other.Date == cur.Date && other.Time == cur.Time {
				return fmt.Errorf("%w: unique accepted slot", appointment.ErrSlotTaken)
			}
		}
	}
	cur.Status = a.Status
	cur.Notes = a.Notes
	cur.CancelReason = a.CancelReason
	cur.Summary = a.Summary
	cur.UpdatedAt = a.UpdatedAt
	t.st.appointments[a.ID] = cur
	return nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.appointments[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(t.st.appointments, id)
	for k, b := range t.st.blocks {
		if b.AppointmentID == id {
			delete(t.st.blocks, k)
		}
	}
	return nil
}

func (t *memTx) ListAppointmentsForSlot(_ context.Context, date appointment.Date, slot string, status appointment.AppointmentStatus) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	for _, a := range t.st.appointments {
		if a.Date == date && a.Time == slot && a.Status == status {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (t *memTx) ListAppointmentsOnDate(_ context.Context, date appointment.Date, statuses ...appointment.AppointmentStatus) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	for _, a := range t.st.appointments {
		if a.Date != date {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func hasStatus(list []appointment.AppointmentStatus, s appointment.AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t *memTx) GetSlotBlock(_ context.Context, date appointment.Date, slot string) (*appointment.SlotBlock, error) {
	b, ok := t.st.blocks[slotKey{date, slot}]
	if !ok {
		return nil, appointment.ErrSlotBlockNotFound
	}
	return &b, nil
}

func (t *memTx) PutSlotBlock(_ context.Context, b appointment.SlotBlock) error {
	t.st.blocks[slotKey{b.Date, b.Time}] = b
	return nil
}

func (t *memTx) DeleteSlotBlock(_ context.Context, date appointment.Date, slot string) error {
	delete(t.st.blocks, slotKey{date, slot})
	return nil
}

func (t *memTx) GetDailySchedule(_ context.Context, date appointment.Date) (*appointment.DailySchedule, error) {
	s, ok := t.st.schedules[date]
	if !ok {
		return nil, appointment.ErrScheduleNotFound
	}
	s.Slots = append([]string{}, s.Slots...)
	return &s, nil
}

func (t *memTx) PutDailySchedule(_ context.Context, s appointment.DailySchedule) error {
	s.Slots = append([]string{}, s.Slots...)
	t.st.schedules[s.Date] = s
	return nil
}

func (t *memTx) DeleteDailySchedule(_ context.Context, date appointment.Date) error {
	delete(t.st.schedules, date)
	return nil
}

func (t *memTx) GetWeeklyTemplate(_ context.Context) (*appointment.WeeklyTemplate, error) {
	if t.st.template == nil {
		return &appointment.WeeklyTemplate{Days: map[string][]string{}}, nil
	}
	return copyTemplate(*t.st.template), nil
}

func (t *memTx) PutWeeklyTemplate(_ context.Context, tpl appointment.WeeklyTemplate) error {
	t.st.template = copyTemplate(tpl)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	ev.ID = int64(len(t.st.events) + 1)
	t.st.events = append(t.st.events, ev)
	return nil
}
