package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks come back as ErrTransactionContention.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapPgError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return (&pgTx{q: r.pool}).GetAppointment(ctx, id)
}

func (r *PgRepository) GetWeeklyTemplate(ctx context.Context) (*WeeklyTemplate, error) {
	return (&pgTx{q: r.pool}).GetWeeklyTemplate(ctx)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("appt_date >= $%d::date", f.From.String())
	}
	if !f.To.IsZero() {
		add("appt_date <= $%d::date", f.To.String())
	}
	if f.Time != "" {
		add("appt_time = $%d", f.Time)
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListDailySchedules(ctx context.Context, from, to Date) ([]DailySchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(schedule_date, 'YYYY-MM-DD'), slots, updated_at
		FROM daily_schedules
		WHERE schedule_date BETWEEN $1::date AND $2::date
		ORDER BY schedule_date
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list daily schedules: %w", err)
	}
	defer rows.Close()

	var result []DailySchedule
	for rows.Next() {
		s, err := scanDailySchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListSlotBlocks(ctx context.Context, from, to Date) ([]SlotBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), slot_time, appointment_id, created_at
		FROM slot_blocks
		WHERE slot_date BETWEEN $1::date AND $2::date
		ORDER BY slot_date
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list slot blocks: %w", err)
	}
	defer rows.Close()

	var result []SlotBlock
	for rows.Next() {
		b, err := scanSlotBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

// Helpers

const appointmentColumns = `id, student_id, student_number, student_name, reason, mode,
	to_char(appt_date, 'YYYY-MM-DD'), appt_time, status, notes, cancel_reason, summary,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date, slot *string

	err := row.Scan(
		&a.ID,
		&a.StudentID,
		&a.StudentNumber,
		&a.StudentName,
		&a.Reason,
		&a.Mode,
		&date,
		&slot,
		&a.Status,
		&a.Notes,
		&a.CancelReason,
		&a.Summary,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if date != nil {
		a.Date = Date(*date)
	}
	if slot != nil {
		a.Time = *slot
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanSlotBlock(row pgx.Row) (*SlotBlock, error) {
	var b SlotBlock
	var date string

	if err := row.Scan(&date, &b.Time, &b.AppointmentID, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotBlockNotFound
		}
		return nil, err
	}
	b.Date = Date(date)
	return &b, nil
}

func scanDailySchedule(row pgx.Row) (*DailySchedule, error) {
	var s DailySchedule
	var date string

	if err := row.Scan(&date, &s.Slots, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	s.Date = Date(date)
	if s.Slots == nil {
		s.Slots = []string{}
	}
	return &s, nil
}

func nullableDate(d Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// mapPgError translates Postgres conflict codes into the service's error
// vocabulary.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "40001", "40P01":
		return fmt.Errorf("%w: %w", ErrTransactionContention, err)
	case "23505":
		if pgErr.ConstraintName == "slot_blocks_pkey" || pgErr.ConstraintName == "appointments_one_accepted_per_slot" {
			return fmt.Errorf("%w: %w", ErrSlotTaken, err)
		}
	}
	return err
}

// pgTx implements Tx over either a transaction or the pool.
type pgTx struct {
	q querier
}

func (t *pgTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments (id, student_id, student_number, student_name, reason, mode,
			appt_date, appt_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, COALESCE($11, now()), COALESCE($12, now()))
	`, a.ID, a.StudentID, a.StudentNumber, a.StudentName, a.Reason, a.Mode,
		nullableDate(a.Date), nullableString(a.Time), a.Status, a.Notes,
		nullableTime(a.CreatedAt), nullableTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a Appointment, from AppointmentStatus) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = $3,
		    cancel_reason = $4,
		    summary = $5,
		    updated_at = COALESCE($6, now())
		WHERE id = $1
		  AND status = $7
	`, a.ID, a.Status, a.Notes, a.CancelReason, a.Summary, nullableTime(a.UpdatedAt), from)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) ListAppointmentsForSlot(ctx context.Context, date Date, slot string, status AppointmentStatus) ([]Appointment, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1::date
		  AND appt_time = $2
		  AND status = $3
		ORDER BY created_at
	`, date.String(), slot, status)
	if err != nil {
		return nil, fmt.Errorf("list appointments for slot: %w", err)
	}
	return collectAppointments(rows)
}

func (t *pgTx) ListAppointmentsOnDate(ctx context.Context, date Date, statuses ...AppointmentStatus) ([]Appointment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := t.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1::date
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY appt_time, created_at
	`, date.String(), names)
	if err != nil {
		return nil, fmt.Errorf("list appointments on date: %w", err)
	}
	return collectAppointments(rows)
}

func (t *pgTx) GetSlotBlock(ctx context.Context, date Date, slot string) (*SlotBlock, error) {
	row := t.q.QueryRow(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), slot_time, appointment_id, created_at
		FROM slot_blocks
		WHERE slot_date = $1::date AND slot_time = $2
	`, date.String(), slot)
	return scanSlotBlock(row)
}

func (t *pgTx) PutSlotBlock(ctx context.Context, b SlotBlock) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO slot_blocks (slot_date, slot_time, appointment_id, created_at)
		VALUES ($1::date, $2, $3, COALESCE($4, now()))
		ON CONFLICT (slot_date, slot_time)
		DO UPDATE SET appointment_id = EXCLUDED.appointment_id, created_at = EXCLUDED.created_at
	`, b.Date.String(), b.Time, b.AppointmentID, nullableTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("put slot block: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteSlotBlock(ctx context.Context, date Date, slot string) error {
	_, err := t.q.Exec(ctx, `
		DELETE FROM slot_blocks WHERE slot_date = $1::date AND slot_time = $2
	`, date.String(), slot)
	if err != nil {
		return fmt.Errorf("delete slot block: %w", err)
	}
	return nil
}

func (t *pgTx) GetDailySchedule(ctx context.Context, date Date) (*DailySchedule, error) {
	row := t.q.QueryRow(ctx, `
		SELECT to_char(schedule_date, 'YYYY-MM-DD'), slots, updated_at
		FROM daily_schedules
		WHERE schedule_date = $1::date
	`, date.String())
	return scanDailySchedule(row)
}

func (t *pgTx) PutDailySchedule(ctx context.Context, s DailySchedule) error {
	slots := s.Slots
	if slots == nil {
		slots = []string{}
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO daily_schedules (schedule_date, slots, updated_at)
		VALUES ($1::date, $2, COALESCE($3, now()))
		ON CONFLICT (schedule_date)
		DO UPDATE SET slots = EXCLUDED.slots, updated_at = EXCLUDED.updated_at
	`, s.Date.String(), slots, nullableTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put daily schedule: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteDailySchedule(ctx context.Context, date Date) error {
	_, err := t.q.Exec(ctx, `DELETE FROM daily_schedules WHERE schedule_date = $1::date`, date.String())
	if err != nil {
		return fmt.Errorf("delete daily schedule: %w", err)
	}
	return nil
}

func (t *pgTx) GetWeeklyTemplate(ctx context.Context) (*WeeklyTemplate, error) {
	var tpl WeeklyTemplate
	err := t.q.QueryRow(ctx, `
		SELECT days, updated_at FROM weekly_templates WHERE id = 1
	`).Scan(&tpl.Days, &tpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &WeeklyTemplate{Days: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("get weekly template: %w", err)
	}
	if tpl.Days == nil {
		tpl.Days = map[string][]string{}
	}
	return &tpl, nil
}

func (t *pgTx) PutWeeklyTemplate(ctx context.Context, tpl WeeklyTemplate) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO weekly_templates (id, days, updated_at)
		VALUES (1, $1, COALESCE($2, now()))
		ON CONFLICT (id)
		DO UPDATE SET days = EXCLUDED.days, updated_at = EXCLUDED.updated_at
	`, tpl.Days, nullableTime(tpl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put weekly template: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
