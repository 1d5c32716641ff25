package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

const day = appointment.Date("2026-02-10")

func TestAcceptCancelsRivalsForTheSameSlot(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending(day, "09:00 AM")
	b := pending(day, "09:00 AM")
	other := pending(day, "10:00 AM")
	f.repo.Seed(a, b, other)

	got, err := f.svc.AcceptAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusAccepted, got.Status)

	assert.Equal(t, appointment.StatusAccepted, f.get(t, a.ID).Status)
	sibling := f.get(t, b.ID)
	assert.Equal(t, appointment.StatusCancelled, sibling.Status)
	assert.Equal(t, appointment.ReasonSlotFilled, sibling.CancelReason)
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, other.ID).Status)

	blocks := f.repo.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, day, blocks[0].Date)
	assert.Equal(t, "09:00 AM", blocks[0].Time)
	assert.Equal(t, a.ID, blocks[0].AppointmentID)

	f.assertSlotInvariants(t)
	assert.Equal(t, []string{
		appointment.EventAppointmentCancelled,
		appointment.EventAppointmentAccepted,
	}, f.notifier.Types())
}

func TestAcceptFailsWhenSlotBlockedByAnother(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending(day, "09:00 AM")
	b := accepted(day, "09:00 AM")
	f.repo.Seed(a, b)
	f.repo.SeedBlock(appointment.SlotBlock{Date: day, Time: "09:00 AM", AppointmentID: b.ID})

	_, err := f.svc.AcceptAppointment(context.Background(), a.ID)
	require.ErrorIs(t, err, appointment.ErrSlotTaken)

	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, a.ID).Status)
	assert.Equal(t, appointment.StatusAccepted, f.get(t, b.ID).Status)
	assert.Empty(t, f.repo.Events())
	assert.Empty(t, f.notifier.Types())
}

func TestAcceptRejectsNonPending(t *testing.T) {
	f := newFixture(t, testConfig())
	a := accepted(day, "09:00 AM")
	c := pending(day, "10:00 AM")
	c.Status = appointment.StatusCancelled
	f.repo.Seed(a, c)

	for _, id := range []uuid.UUID{a.ID, c.ID} {
		_, err := f.svc.AcceptAppointment(context.Background(), id)
		assert.ErrorIs(t, err, appointment.ErrInvalidState)
	}
}

func TestAcceptUnknownAppointment(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.svc.AcceptAppointment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestAcceptMalformedAppointment(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending("", "")
	f.repo.Seed(a)

	_, err := f.svc.AcceptAppointment(context.Background(), a.ID)
	require.ErrorIs(t, err, appointment.ErrMissingData)
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, a.ID).Status)
	assert.Empty(t, f.repo.Blocks())
}

func TestConcurrentAcceptsGrantOneSlot(t *testing.T) {
	f := newFixture(t, testConfig())

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		a := pending(day, "01:00 PM")
		f.repo.Seed(a)
		ids = append(ids, a.ID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.AcceptAppointment(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errorsIsAny(err, appointment.ErrInvalidState, appointment.ErrSlotTaken):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	f.assertSlotInvariants(t)

	cancelled := 0
	for _, a := range f.repo.All() {
		if a.Status == appointment.StatusCancelled {
			cancelled++
		}
	}
	assert.Equal(t, len(ids)-1, cancelled)
}

func TestDenyAcceptedFreesSlot(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	_, err := f.svc.ReconcileScheduleEdit(ctx, day, []string{"09:00 AM", "10:00 AM"})
	require.NoError(t, err)

	a := pending(day, "09:00 AM")
	f.repo.Seed(a)
	_, err = f.svc.AcceptAppointment(ctx, a.ID)
	require.NoError(t, err)

	days, err := f.svc.Availability(ctx, day, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM"}, days[0].Blocked)

	got, err := f.svc.DenyOrCancelAppointment(ctx, a.ID, "counselor unavailable")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, "counselor unavailable", got.CancelReason)
	assert.Empty(t, f.repo.Blocks())

	days, err = f.svc.Availability(ctx, day, day)
	require.NoError(t, err)
	assert.Empty(t, days[0].Blocked)

	// The freed slot can be taken by a new request.
	created, err := f.svc.CreateAppointment(ctx, appointment.NewAppointment{
		StudentID: "student-2",
		Date:      day,
		Time:      "09:00 AM",
	})
	require.NoError(t, err)
	_, err = f.svc.AcceptAppointment(ctx, created.ID)
	require.NoError(t, err)
	f.assertSlotInvariants(t)
}

func TestDenyTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	a := pending(day, "09:00 AM")
	f.repo.Seed(a)

	_, err := f.svc.DenyOrCancelAppointment(ctx, a.ID, "first")
	require.NoError(t, err)
	events := len(f.repo.Events())

	_, err = f.svc.DenyOrCancelAppointment(ctx, a.ID, "second")
	require.ErrorIs(t, err, appointment.ErrInvalidState)

	got := f.get(t, a.ID)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, "first", got.CancelReason)
	assert.Len(t, f.repo.Events(), events)
}

func TestCompleteFreesSlot(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	a := pending(day, "11:00 AM")
	f.repo.Seed(a)

	_, err := f.svc.CompleteAppointment(ctx, a.ID, "too early")
	require.ErrorIs(t, err, appointment.ErrInvalidState)

	_, err = f.svc.AcceptAppointment(ctx, a.ID)
	require.NoError(t, err)

	got, err := f.svc.CompleteAppointment(ctx, a.ID, "discussed course load")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, got.Status)
	assert.Equal(t, "discussed course load", got.Summary)
	assert.Empty(t, f.repo.Blocks())
	f.assertSlotInvariants(t)

	_, err = f.svc.DenyOrCancelAppointment(ctx, a.ID, "late")
	assert.ErrorIs(t, err, appointment.ErrInvalidState)
}

func TestScheduleEditCancelsOrphanedAppointments(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	_, err := f.svc.ReconcileScheduleEdit(ctx, day, []string{"09:00 AM", "02:00 PM"})
	require.NoError(t, err)

	held := pending(day, "02:00 PM")
	waiting := pending(day, "02:00 PM")
	kept := pending(day, "09:00 AM")
	done := pending(day, "02:00 PM")
	done.Status = appointment.StatusCompleted
	f.repo.Seed(held, waiting, kept, done)

	_, err = f.svc.AcceptAppointment(ctx, held.ID)
	require.NoError(t, err)
	require.Len(t, f.repo.Blocks(), 1)

	orphaned, err := f.svc.ReconcileScheduleEdit(ctx, day, []string{"09:00 AM"})
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, held.ID, orphaned[0].ID)

	got := f.get(t, held.ID)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, appointment.ReasonScheduleUpdated, got.CancelReason)
	assert.Empty(t, f.repo.Blocks())

	// Rival was already cancelled by the accept; completed stays completed.
	assert.Equal(t, appointment.StatusCancelled, f.get(t, waiting.ID).Status)
	assert.Equal(t, appointment.ReasonSlotFilled, f.get(t, waiting.ID).CancelReason)
	assert.Equal(t, appointment.StatusCompleted, f.get(t, done.ID).Status)
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, kept.ID).Status)

	slots, err := f.svc.EffectiveSlots(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM"}, slots)

	for _, a := range f.repo.All() {
		if a.Date == day && (a.Status == appointment.StatusPendingApproval || a.Status == appointment.StatusAccepted) {
			assert.Equal(t, "09:00 AM", a.Time)
		}
	}
	f.assertSlotInvariants(t)
}

func TestScheduleEditCancelsAppointmentsWithoutTime(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending(day, "")
	f.repo.Seed(a)

	orphaned, err := f.svc.ReconcileScheduleEdit(context.Background(), day, []string{"09:00 AM"})
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, appointment.StatusCancelled, f.get(t, a.ID).Status)
}

func TestScheduleEditRejectsUnknownLabels(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending(day, "09:00 AM")
	f.repo.Seed(a)

	_, err := f.svc.ReconcileScheduleEdit(context.Background(), day, []string{"9am"})
	require.ErrorIs(t, err, appointment.ErrInvalidSlot)
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, a.ID).Status)
	assert.Zero(t, f.repo.Commits())
}

func TestClearScheduleOverrideFallsBackToTemplate(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	tuesday := appointment.Date("2026-02-03")

	_, err := f.svc.SaveWeeklyTemplate(ctx, map[string][]string{"tuesday": {"09:00 AM"}})
	require.NoError(t, err)
	_, err = f.svc.ReconcileScheduleEdit(ctx, tuesday, []string{"09:00 AM", "03:00 PM"})
	require.NoError(t, err)

	a := pending(tuesday, "03:00 PM")
	f.repo.Seed(a)
	_, err = f.svc.AcceptAppointment(ctx, a.ID)
	require.NoError(t, err)

	orphaned, err := f.svc.ClearScheduleOverride(ctx, tuesday)
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, appointment.StatusCancelled, f.get(t, a.ID).Status)

	schedules, err := f.repo.ListDailySchedules(ctx, tuesday, tuesday)
	require.NoError(t, err)
	assert.Empty(t, schedules)

	slots, err := f.svc.EffectiveSlots(ctx, tuesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM"}, slots)
	f.assertSlotInvariants(t)
}

func TestContentionIsRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	a := pending(day, "09:00 AM")
	b := pending(day, "09:00 AM")
	f.repo.Seed(a, b)
	f.repo.FailNextCommits(2)

	_, err := f.svc.AcceptAppointment(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.repo.Commits())
	assert.Equal(t, appointment.StatusCancelled, f.get(t, b.ID).Status)
	// Only the committed attempt is published.
	assert.Equal(t, []string{
		appointment.EventAppointmentCancelled,
		appointment.EventAppointmentAccepted,
	}, f.notifier.Types())
}

func TestContentionGivesUpAfterRetries(t *testing.T) {
	cfg := testConfig()
	cfg.TxMaxRetries = 2
	f := newFixture(t, cfg)
	a := pending(day, "09:00 AM")
	b := pending(day, "09:00 AM")
	f.repo.Seed(a, b)
	f.repo.FailNextCommits(3)

	_, err := f.svc.AcceptAppointment(context.Background(), a.ID)
	require.ErrorIs(t, err, appointment.ErrTransactionContention)

	assert.Zero(t, f.repo.Commits())
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, a.ID).Status)
	assert.Equal(t, appointment.StatusPendingApproval, f.get(t, b.ID).Status)
	assert.Empty(t, f.repo.Blocks())
	assert.Empty(t, f.notifier.Types())
}

func TestSaveWeeklyTemplateFansOut(t *testing.T) {
	cfg := testConfig()
	cfg.FanOutDays = 7
	f := newFixture(t, cfg)
	ctx := context.Background()

	wednesday := appointment.Date("2026-02-04")
	a := pending(wednesday, "04:00 PM")
	f.repo.Seed(a)
	_, err := f.svc.AcceptAppointment(ctx, a.ID)
	require.NoError(t, err)

	res, err := f.svc.SaveWeeklyTemplate(ctx, map[string][]string{
		"monday":    {"10:00 AM", "09:00 AM"},
		"wednesday": {"09:00 AM"},
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.Date("2026-02-02"), res.From)
	assert.Equal(t, 7, res.Written)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, a.ID, res.Cancelled[0].ID)

	schedules, err := f.repo.ListDailySchedules(ctx, "2026-02-02", "2026-02-08")
	require.NoError(t, err)
	require.Len(t, schedules, 7)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM"}, schedules[0].Slots)
	assert.Equal(t, []string{}, schedules[1].Slots)
	assert.Equal(t, []string{"09:00 AM"}, schedules[2].Slots)

	tpl, err := f.svc.WeeklyTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM"}, tpl.Days["monday"])
	f.assertSlotInvariants(t)
}

func TestSaveWeeklyTemplateRejectsUnknownWeekday(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.svc.SaveWeeklyTemplate(context.Background(), map[string][]string{"funday": {"09:00 AM"}})
	require.ErrorIs(t, err, appointment.ErrInvalidRequest)
	assert.Zero(t, f.repo.Commits())
}

func TestExtendScheduleHorizonOnlyFillsGaps(t *testing.T) {
	cfg := testConfig()
	cfg.FanOutDays = 3
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.svc.SaveWeeklyTemplate(ctx, map[string][]string{"friday": {"01:00 PM"}})
	require.NoError(t, err)

	friday := appointment.Date("2026-02-06")
	_, err = f.svc.ReconcileScheduleEdit(ctx, friday, []string{"03:00 PM"})
	require.NoError(t, err)

	cfg.FanOutDays = 7
	wider := appointment.NewService(f.repo, nil, cfg, appointment.WithClock(func() time.Time { return testNow }))
	res, err := wider.ExtendScheduleHorizon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written) // 02-05, 02-07, 02-08

	schedules, err := f.repo.ListDailySchedules(ctx, friday, friday)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, []string{"03:00 PM"}, schedules[0].Slots)

	res, err = wider.ExtendScheduleHorizon(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Written)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
