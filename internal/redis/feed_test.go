package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
	"github.com/hackgods/guidance-scheduling/internal/config"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestPublishReportsUnreachableRedis(t *testing.T) {
	p := NewFeedPublisher(unreachableClient(t), "test:changes")

	err := p.Publish(context.Background(), appointment.ChangeEvent{
		Type: appointment.EventAppointmentAccepted,
		Date: "2026-02-10",
		At:   time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish change event")
}

func TestSubscribeReportsUnreachableRedis(t *testing.T) {
	p := NewFeedPublisher(unreachableClient(t), "test:changes")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := p.Subscribe(ctx)
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Contains(t, err.Error(), "subscribe test:changes")
}

func TestNewRedisClientFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, config.Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}
