package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
	"github.com/hackgods/guidance-scheduling/internal/config"
	"github.com/hackgods/guidance-scheduling/internal/db"
	redisclient "github.com/hackgods/guidance-scheduling/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("schedule-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running schedule worker in env=%s cron=%q horizon_days=%d", cfg.Env, cfg.FanOutCron, cfg.FanOutDays)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	var notifier appointment.Notifier
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.Printf("redis unavailable, live feed disabled: %v", err)
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		notifier = redisclient.NewFeedPublisher(rdb, cfg.FeedChannel)
		log.Println("connected to Redis")
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, notifier, cfg)

	// Run once at startup
	runOnce(rootCtx, svc)

	c := cron.New(cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc(cfg.FanOutCron, func() { runOnce(rootCtx, svc) }); err != nil {
		log.Fatalf("invalid FANOUT_CRON %q: %v", cfg.FanOutCron, err)
	}
	c.Start()

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping schedule worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := svc.ExtendScheduleHorizon(runCtx)
	if err != nil {
		log.Printf("horizon run error: %v", err)
		return
	}
	log.Printf("horizon run complete from=%s days=%d written=%d failed=%d in %s",
		res.From, res.Days, res.Written, len(res.Failed), time.Since(start))
}
