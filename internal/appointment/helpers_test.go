package appointment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
	"github.com/hackgods/guidance-scheduling/internal/appointment/apptest"
	"github.com/hackgods/guidance-scheduling/internal/config"
)

// Monday.
var testNow = time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		TxMaxRetries: 3,
		FanOutDays:   14,
		Location:     time.UTC,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []appointment.ChangeEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev appointment.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc      *appointment.Service
	repo     *apptest.MemoryRepository
	notifier *recordingNotifier
}

func newFixture(t *testing.T, cfg config.Config, opts ...appointment.Option) *fixture {
	t.Helper()
	repo := apptest.NewMemoryRepository()
	n := &recordingNotifier{}
	opts = append([]appointment.Option{appointment.WithClock(func() time.Time { return testNow })}, opts...)
	return &fixture{
		svc:      appointment.NewService(repo, n, cfg, opts...),
		repo:     repo,
		notifier: n,
	}
}

var seedSeq int

func pending(date appointment.Date, slot string) appointment.Appointment {
	seedSeq++
	return appointment.Appointment{
		ID:        uuid.New(),
		StudentID: "student-" + uuid.NewString()[:8],
		Mode:      appointment.ModeInPerson,
		Date:      date,
		Time:      slot,
		Status:    appointment.StatusPendingApproval,
		CreatedAt: testNow.Add(time.Duration(seedSeq) * time.Second),
		UpdatedAt: testNow,
	}
}

func accepted(date appointment.Date, slot string) appointment.Appointment {
	a := pending(date, slot)
	a.Status = appointment.StatusAccepted
	return a
}

func (f *fixture) get(t *testing.T, id uuid.UUID) appointment.Appointment {
	t.Helper()
	a, err := f.repo.GetAppointmentByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return *a
}

// assertSlotInvariants checks that at most one appointment is accepted per
// slot and that slot blocks match accepted appointments exactly.
func (f *fixture) assertSlotInvariants(t *testing.T) {
	t.Helper()
	type key struct {
		date appointment.Date
		time string
	}

	holders := map[key]uuid.UUID{}
	for _, a := range f.repo.All() {
		if a.Status != appointment.StatusAccepted {
			continue
		}
		k := key{a.Date, a.Time}
		if other, ok := holders[k]; ok {
			t.Fatalf("slot %s %s accepted twice: %s and %s", a.Date, a.Time, other, a.ID)
		}
		holders[k] = a.ID
	}

	blocks := f.repo.Blocks()
	if len(blocks) != len(holders) {
		t.Fatalf("got %d slot blocks for %d accepted appointments", len(blocks), len(holders))
	}
	for _, b := range blocks {
		if holders[key{b.Date, b.Time}] != b.AppointmentID {
			t.Fatalf("block %s %s points at %s, accepted holder is %s",
				b.Date, b.Time, b.AppointmentID, holders[key{b.Date, b.Time}])
		}
	}
}
