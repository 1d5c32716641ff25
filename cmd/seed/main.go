package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
	"github.com/hackgods/guidance-scheduling/internal/auth"
	"github.com/hackgods/guidance-scheduling/internal/config"
	"github.com/hackgods/guidance-scheduling/internal/db"
)

var topics = []string{
	"Academic planning",
	"Career guidance",
	"Stress and anxiety",
	"Peer relationships",
	"Family concerns",
	"Study habits",
	"Scholarship application",
	"Course shifting",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	students := flag.Int("students", 200, "number of fake students")
	requests := flag.Int("requests", 600, "number of pending requests to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, cfg)

	if err := seedTemplate(ctx, svc); err != nil {
		log.Fatalf("seed template: %v", err)
	}
	ids, err := seedRequests(ctx, svc, *students, *requests)
	if err != nil {
		log.Fatalf("seed requests: %v", err)
	}

	if err := printTokens(cfg, ids); err != nil {
		log.Fatalf("issue tokens: %v", err)
	}

	log.Println("seed complete")
}

func seedTemplate(ctx context.Context, svc *appointment.Service) error {
	morning := []string{"08:00 AM", "08:30 AM", "09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM", "11:00 AM"}
	afternoon := []string{"01:00 PM", "01:30 PM", "02:00 PM", "02:30 PM", "03:00 PM", "03:30 PM", "04:00 PM"}

	days := map[string][]string{
		"monday":    append(append([]string{}, morning...), afternoon...),
		"tuesday":   morning,
		"wednesday": append(append([]string{}, morning...), afternoon...),
		"thursday":  afternoon,
		"friday":    morning,
		"saturday":  {},
		"sunday":    {},
	}

	res, err := svc.SaveWeeklyTemplate(ctx, days)
	if err != nil {
		return err
	}
	log.Printf("template fanned out from=%s written=%d failed=%d", res.From, res.Written, len(res.Failed))
	return nil
}

type student struct {
	id     string
	number string
	name   string
}

func seedRequests(ctx context.Context, svc *appointment.Service, studentCount, count int) ([]string, error) {
	log.Printf("seeding %d requests from %d students", count, studentCount)

	roster := make([]student, studentCount)
	for i := range roster {
		roster[i] = student{
			id:     uuid.NewString(),
			number: fmt.Sprintf("%d-%05d", gofakeit.Number(2021, 2025), gofakeit.Number(1, 99999)),
			name:   gofakeit.Name(),
		}
	}

	today := appointment.DateOf(time.Now())
	created, skipped := 0, 0
	for created < count && skipped < count*5 {
		date := today.AddDays(gofakeit.Number(1, 30))
		slots, err := svc.EffectiveSlots(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			skipped++
			continue
		}

		st := roster[gofakeit.Number(0, len(roster)-1)]
		mode := appointment.ModeInPerson
		if gofakeit.Bool() {
			mode = appointment.ModeOnline
		}

		_, err = svc.CreateAppointment(ctx, appointment.NewAppointment{
			StudentID:     st.id,
			StudentNumber: st.number,
			StudentName:   st.name,
			Reason:        topics[gofakeit.Number(0, len(topics)-1)],
			Mode:          mode,
			Date:          date,
			Time:          slots[gofakeit.Number(0, len(slots)-1)],
			Notes:         gofakeit.Sentence(8),
		})
		if errors.Is(err, appointment.ErrSlotTaken) || errors.Is(err, appointment.ErrSlotUnavailable) {
			skipped++
			continue
		}
		if err != nil {
			return nil, err
		}

		created++
		if created%100 == 0 {
			log.Printf("requests seeded: %d/%d", created, count)
		}
	}

	log.Printf("requests seeded: %d (skipped %d)", created, skipped)

	ids := make([]string, len(roster))
	for i, st := range roster {
		ids[i] = st.id
	}
	return ids, nil
}

func printTokens(cfg config.Config, studentIDs []string) error {
	v := auth.NewVerifier(cfg.JWTSecret)

	counselor, err := v.Issue(auth.Identity{UserID: "counselor-1", Name: gofakeit.Name(), Role: auth.RoleCounselor}, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("COUNSELOR_TOKEN=%s\n", counselor)

	if len(studentIDs) > 0 {
		st, err := v.Issue(auth.Identity{UserID: studentIDs[0], Role: auth.RoleStudent}, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("STUDENT_TOKEN=%s\n", st)
	}
	return nil
}
