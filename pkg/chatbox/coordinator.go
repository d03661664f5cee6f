// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Coordinator pairs ids across the two sides. It resolves an external id to
// its connection, creating one through the peer side's allocator when asked,
// and keeps both sides' activation state in step.
type Coordinator struct {
	store    *Store
	channels [2]*ServiceChannel
	timeout  time.Duration
	flight   singleflight.Group
	metrics  metrics.MetricSink
	labels   []metrics.Label
	log      zerolog.Logger

	// activation serializes activations so both sides share one record.
	activation sync.Mutex
}

func newCoordinator(store *Store, channels [2]*ServiceChannel, timeout time.Duration, ms metrics.MetricSink, labels []metrics.Label, log zerolog.Logger) *Coordinator {
	co := &Coordinator{
		store:    store,
		channels: channels,
		timeout:  timeout,
		metrics:  ms,
		labels:   labels,
		log:      log.With().Str("component", "coordinator").Logger(),
	}
	for _, sc := range channels {
		sc.coord = co
	}
	return co
}

// Resolve returns the connection of an external id on the given side.
// Concurrent calls for the same id share one lookup, so a connection is
// created at most once.
func (co *Coordinator) Resolve(ctx context.Context, side Side, id ID, createIfAbsent bool) (*Connection, error) {
	key := fmt.Sprintf("%s/%s/%s/%t", side, id.Kind(), id, createIfAbsent)
	// The shared lookup must not be cut short by whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	res, err, shared := co.flight.Do(key, func() (any, error) {
		return co.resolve(flightCtx, side, id, createIfAbsent)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		co.log.Trace().Stringer("side", side).Str("external_id", id.String()).Msg("Shared concurrent resolution")
	}
	return res.(*Connection), nil
}

func (co *Coordinator) resolve(ctx context.Context, side Side, id ID, createIfAbsent bool) (*Connection, error) {
	log := co.log.With().Stringer("side", side).Str("external_id", id.String()).Logger()
	labels := co.sideLabels(side)

	if conn := co.channels[side].activeConnection(id); conn != nil {
		co.metrics.IncrCounterWithLabels(MetricConnectionResolvedCount, 1, labels)
		return conn, nil
	}
	conn, err := co.store.FindConnection(ctx, side, id)
	if errors.Is(err, ErrIdentityType) {
		return nil, err
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to look up connection, treating as not found")
		conn = nil
	}
	if conn != nil {
		// Keep a single in-memory record per connection.
		if live := co.channels[side.Other()].connectionByID(conn.ID()); live != nil {
			conn = live
		}
		co.metrics.IncrCounterWithLabels(MetricConnectionResolvedCount, 1, labels)
		log.Debug().Stringer("connection_id", conn.ID()).Msg("Resolved stored connection")
		return conn, nil
	}
	if !createIfAbsent {
		return nil, fmt.Errorf("%w: %s has no connection for %s", ErrConnectionNotFound, co.channels[side].name, id)
	}

	peerID, err := co.allocate(ctx, side, id)
	if err != nil {
		co.metrics.IncrCounterWithLabels(MetricAllocationErrorCount, 1, labels)
		log.Err(err).Msg("Failed to allocate peer id")
		return nil, err
	}
	side1, side2 := id, peerID
	if side == Side2 {
		side1, side2 = peerID, id
	}
	conn, err = NewConnection(side1, side2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	if err = co.store.InsertConnection(ctx, conn); err != nil {
		return nil, err
	}
	co.metrics.IncrCounterWithLabels(MetricConnectionCreatedCount, 1, labels)
	log.Info().
		Stringer("connection_id", conn.ID()).
		Str("peer_id", peerID.String()).
		Msg("Created connection")
	return conn, nil
}

// allocate obtains the correlated id from the side opposite to the accessing
// one. Without an allocator, generatable kinds get a fresh id unless the peer
// side demands strict allocation.
func (co *Coordinator) allocate(ctx context.Context, side Side, id ID) (ID, error) {
	peer := co.channels[side.Other()]
	alloc, _, _, _ := peer.capabilities()
	if alloc == nil {
		if peer.strict || !peer.kind.Generatable() {
			return ID{}, fmt.Errorf("%w: %s has no allocator for %s ids", ErrAllocation, peer.name, peer.kind)
		}
		return peer.kind.Generate()
	}
	allocCtx, cancel := context.WithTimeout(ctx, co.timeout)
	defer cancel()
	peerID, err := alloc.Allocate(allocCtx, id)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %s allocator failed: %v", ErrAllocation, peer.name, err)
	}
	if peerID.IsZero() {
		return ID{}, fmt.Errorf("%w: %s allocator returned an empty id", ErrAllocation, peer.name)
	}
	if err = peerID.checkKind(peer.kind); err != nil {
		return ID{}, fmt.Errorf("%w: %s allocator returned %s id, want %s", ErrAllocation, peer.name, peerID.Kind(), peer.kind)
	}
	return peerID, nil
}

// activate marks the connection active on both sides and tells the peer
// side that the accessing participant is reachable. If either side already
// holds a live record of the same connection, that record is kept and
// returned instead of conn.
func (co *Coordinator) activate(ctx context.Context, conn *Connection, origin Side) *Connection {
	peer := co.channels[origin.Other()]
	co.activation.Lock()
	for _, sc := range co.channels {
		if live := sc.connectionByID(conn.ID()); live != nil {
			conn = live
			break
		}
	}
	co.channels[origin].activate(conn, true)
	peer.activate(conn, false)
	co.activation.Unlock()
	if _, _, _, reachable := peer.capabilities(); reachable != nil {
		reachable.OnReachable(ctx, conn, origin)
	}
	return conn
}

// teardown deactivates the peer participant of a connection whose origin
// side went away and tells the peer side's listener.
func (co *Coordinator) teardown(ctx context.Context, conn *Connection, origin Side) {
	peer := co.channels[origin.Other()]
	peer.Deactivate(ctx, conn.SideID(peer.side), true)
	co.metrics.IncrCounterWithLabels(MetricDeactivationCount, 1, co.sideLabels(origin))
	if _, deactivation, _, _ := peer.capabilities(); deactivation != nil {
		deactivation.OnDeactivated(ctx, conn, origin)
	}
}

func (co *Coordinator) sideLabels(side Side) []metrics.Label {
	labels := make([]metrics.Label, 0, len(co.labels)+1)
	labels = append(labels, co.labels...)
	return append(labels, LabelSide.M(side.String()))
}
