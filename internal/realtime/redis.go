package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisBroker fans envelopes out through a Redis Pub/Sub channel. Every
// server instance runs one subscriber and delivers to its own registry, so a
// user connected to instance B still hears about a claim handled by
// instance A.
type RedisBroker struct {
	client   *redis.Client
	channel  string
	registry *Registry
	logger   *slog.Logger
	ready    chan struct{}
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(client *redis.Client, channel string, registry *Registry, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client:   client,
		channel:  channel,
		registry: registry,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("realtime: parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encoding envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("realtime: publishing %s: %w", env.Event, err)
	}
	return nil
}

// Ready is closed once Run's subscription is confirmed.
func (b *RedisBroker) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes and delivers until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Receive blocks until Redis confirms the subscription, so nothing
	// published after Ready fires can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribing to %s: %w", b.channel, err)
	}
	close(b.ready)

	b.logger.Info("relay subscribed", slog.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed relay message", slog.String("error", err.Error()))
				continue
			}
			if _, err := b.registry.Deliver(env); err != nil {
				b.logger.Warn("relay delivery failed",
					slog.String("event", env.Event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
