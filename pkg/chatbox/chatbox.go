// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"
)

// ChatBox is one running bridge between two sides.
type ChatBox struct {
	cfg      *Config
	uid      uuid.UUID
	store    *Store
	channels [2]*ServiceChannel
	coord    *Coordinator
	broker   *Broker
	log      zerolog.Logger
}

type options struct {
	metrics metrics.MetricSink
}

// Option tunes a ChatBox.
type Option func(*options)

// WithMetricSink chooses where the counters of the chatbox are sent.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(o *options) {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		o.metrics = ms
	}
}

// New builds a chatbox on top of an opened store. cfg must have been
// post-processed.
func New(cfg *Config, store *Store, log zerolog.Logger, opts ...Option) (*ChatBox, error) {
	if store == nil {
		return nil, fmt.Errorf("a store is required")
	}
	for _, side := range []Side{Side1, Side2} {
		if store.kinds[side] != cfg.Side(side).Kind() {
			return nil, fmt.Errorf("%w: store has %s ids on %s, config declares %s",
				ErrIdentityType, store.kinds[side], side, cfg.Side(side).Kind())
		}
	}
	o := options{metrics: &metrics.BlackholeSink{}}
	for _, opt := range opts {
		opt(&o)
	}

	cb := &ChatBox{
		cfg:   cfg,
		uid:   uuid.New(),
		store: store,
	}
	cb.log = log.With().Str("chatbox", cfg.Name).Stringer("chatbox_uid", cb.uid).Logger()
	cb.channels = [2]*ServiceChannel{
		newServiceChannel(Side1, &cfg.Side1, cfg.QueueSize, cb.log),
		newServiceChannel(Side2, &cfg.Side2, cfg.QueueSize, cb.log),
	}
	labels := []metrics.Label{LabelBox.M(cfg.Name)}
	cb.coord = newCoordinator(store, cb.channels, cfg.allocationTimeout(), o.metrics, labels, cb.log)
	cb.broker = newBroker(store, cb.channels, o.metrics, labels, cb.log)
	return cb, nil
}

// Name returns the configured name of the chatbox.
func (cb *ChatBox) Name() string {
	return cb.cfg.Name
}

// UID identifies this running instance.
func (cb *ChatBox) UID() uuid.UUID {
	return cb.uid
}

func (cb *ChatBox) Side1() *ServiceChannel {
	return cb.channels[Side1]
}

func (cb *ChatBox) Side2() *ServiceChannel {
	return cb.channels[Side2]
}

// Channel returns the channel of the given side.
func (cb *ChatBox) Channel(side Side) *ServiceChannel {
	return cb.channels[side]
}

// Store returns the persistence store.
func (cb *ChatBox) Store() *Store {
	return cb.store
}

// SaveProperties persists the property bag of a connection.
func (cb *ChatBox) SaveProperties(ctx context.Context, conn *Connection) error {
	return cb.store.UpdateProperties(ctx, conn)
}

// Run relays messages until ctx is done.
func (cb *ChatBox) Run(ctx context.Context) error {
	cb.log.Info().
		Str("side1", cb.channels[Side1].name).
		Str("side2", cb.channels[Side2].name).
		Msg("Chatbox started")
	err := cb.broker.Run(ctx)
	cb.log.Info().Msg("Chatbox stopped")
	return err
}
