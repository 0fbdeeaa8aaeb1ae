package realtime

import (
	"context"
	"log/slog"
)

// Broker carries envelopes to the registry. Publish must not block on slow
// clients. Run blocks until ctx is cancelled.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Run(ctx context.Context) error
}

// LocalBroker delivers straight into this process's registry. Use it when
// one server instance holds every connection.
type LocalBroker struct {
	registry *Registry
	logger   *slog.Logger
}

var _ Broker = (*LocalBroker)(nil)

func NewLocalBroker(registry *Registry, logger *slog.Logger) *LocalBroker {
	return &LocalBroker{registry: registry, logger: logger}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	n, err := b.registry.Deliver(env)
	if err != nil {
		return err
	}
	b.logger.Debug("event delivered",
		slog.String("event", env.Event),
		slog.Int("recipients", len(env.UserIDs)),
		slog.Int("clients", n),
	)
	return nil
}

func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
