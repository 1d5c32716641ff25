package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

// FeedPublisher pushes committed appointment and schedule changes onto a
// Redis pub/sub channel for live dashboards.
type FeedPublisher struct {
	client  *redis.Client
	channel string
}

func NewFeedPublisher(client *redis.Client, channel string) *FeedPublisher {
	return &FeedPublisher{client: client, channel: channel}
}

func (p *FeedPublisher) Publish(ctx context.Context, ev appointment.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe streams raw change payloads until ctx is done. The returned
// channel is closed when the subscription ends.
func (p *FeedPublisher) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
