// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"

	"github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Broker drains both sides' queues. Every message is appended to the store
// and then delivered to both sides, so each participant sees the whole
// conversation including its own lines.
type Broker struct {
	store    *Store
	channels [2]*ServiceChannel
	metrics  metrics.MetricSink
	labels   []metrics.Label
	log      zerolog.Logger
}

func newBroker(store *Store, channels [2]*ServiceChannel, ms metrics.MetricSink, labels []metrics.Label, log zerolog.Logger) *Broker {
	return &Broker{
		store:    store,
		channels: channels,
		metrics:  ms,
		labels:   labels,
		log:      log.With().Str("component", "broker").Logger(),
	}
}

// Run forwards messages until ctx is done. It returns nil on cancellation.
func (b *Broker) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, sc := range b.channels {
		eg.Go(func() error {
			b.forward(ctx, sc)
			return nil
		})
	}
	return eg.Wait()
}

// forward is the single consumer of one side's queue, which keeps that
// side's messages in submission order.
func (b *Broker) forward(ctx context.Context, sc *ServiceChannel) {
	log := b.log.With().Stringer("side", sc.side).Logger()
	log.Debug().Msg("Forwarding loop started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Forwarding loop stopped")
			return
		case msg := <-sc.toBroker:
			b.relay(ctx, msg)
		}
	}
}

func (b *Broker) relay(ctx context.Context, msg *Message) {
	labels := make([]metrics.Label, 0, len(b.labels)+1)
	labels = append(labels, b.labels...)
	labels = append(labels, LabelOrigin.M(msg.Origin.String()))

	err := b.store.AppendMessage(ctx, msg)
	if err != nil {
		b.metrics.IncrCounterWithLabels(MetricPersistErrorCount, 1, labels)
		b.log.Warn().Err(err).
			Stringer("connection_id", msg.ConnectionID).
			Msg("Relaying message that could not be persisted")
	}
	if msg.conn != nil {
		msg.conn.record(msg, err == nil)
	}
	b.channels[Side1].deliver(ctx, msg)
	b.channels[Side2].deliver(ctx, msg)
	b.metrics.IncrCounterWithLabels(MetricRelayedCount, 1, labels)
}
