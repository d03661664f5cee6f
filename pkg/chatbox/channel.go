// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// participant is one active external id on a side.
type participant struct {
	conn    *Connection
	mailbox *Mailbox
}

// ServiceChannel is the single point of contact between one external side and
// the core. It owns the side's table of active participants and their
// mailboxes; nothing else mutates them.
type ServiceChannel struct {
	side     Side
	name     string
	kind     IDKind
	strict   bool
	coord    *Coordinator
	toBroker chan *Message
	log      zerolog.Logger

	capLock      sync.RWMutex
	allocator    Allocator
	deactivation DeactivationListener
	sink         MessageSink
	reachable    ReachableListener

	lock   sync.RWMutex
	active map[ID]*participant
	byConn map[uuid.UUID]ID
}

func newServiceChannel(side Side, cfg *SideConfig, queueSize int, log zerolog.Logger) *ServiceChannel {
	return &ServiceChannel{
		side:     side,
		name:     cfg.Name,
		kind:     cfg.Kind(),
		strict:   cfg.StrictAllocation,
		toBroker: make(chan *Message, queueSize),
		log: log.With().
			Str("component", "service_channel").
			Stringer("side", side).
			Str("side_name", cfg.Name).
			Logger(),
		active: make(map[ID]*participant),
		byConn: make(map[uuid.UUID]ID),
	}
}

// Side returns which side of the bridge this channel serves.
func (sc *ServiceChannel) Side() Side {
	return sc.side
}

// Name returns the configured label of the side.
func (sc *ServiceChannel) Name() string {
	return sc.name
}

// Kind returns the declared id kind of the side.
func (sc *ServiceChannel) Kind() IDKind {
	return sc.kind
}

// SetAllocator registers how this side produces ids for new connections
// initiated by the other side.
func (sc *ServiceChannel) SetAllocator(alloc Allocator) {
	sc.capLock.Lock()
	sc.allocator = alloc
	sc.capLock.Unlock()
}

// SetDeactivationListener registers the listener told about peer teardown.
func (sc *ServiceChannel) SetDeactivationListener(listener DeactivationListener) {
	sc.capLock.Lock()
	sc.deactivation = listener
	sc.capLock.Unlock()
}

// SetMessageSink registers a push receiver for delivered messages. Once set,
// messages go to the sink instead of the participants' mailboxes.
func (sc *ServiceChannel) SetMessageSink(sink MessageSink) {
	sc.capLock.Lock()
	sc.sink = sink
	sc.capLock.Unlock()
}

// SetReachableListener registers the listener told about peer activation.
func (sc *ServiceChannel) SetReachableListener(listener ReachableListener) {
	sc.capLock.Lock()
	sc.reachable = listener
	sc.capLock.Unlock()
}

func (sc *ServiceChannel) capabilities() (Allocator, DeactivationListener, MessageSink, ReachableListener) {
	sc.capLock.RLock()
	defer sc.capLock.RUnlock()
	return sc.allocator, sc.deactivation, sc.sink, sc.reachable
}

// Access activates the participant with the given id, creating its
// connection first if needed and createIfAbsent is set. A zero id is replaced
// by a generated one when the side's kind allows it. The (possibly generated)
// id is returned.
//
// If nothing is stored for the id and createIfAbsent is false, the error
// wraps ErrConnectionNotFound.
func (sc *ServiceChannel) Access(ctx context.Context, id ID, createIfAbsent bool) (ID, error) {
	if id.IsZero() {
		generated, err := sc.kind.Generate()
		if err != nil {
			return ID{}, fmt.Errorf("%s: an id is required: %w", sc.name, err)
		}
		id = generated
	} else if err := id.checkKind(sc.kind); err != nil {
		return ID{}, fmt.Errorf("%s: %w", sc.name, err)
	}
	conn, err := sc.coord.Resolve(ctx, sc.side, id, createIfAbsent)
	if err != nil {
		return ID{}, err
	}
	sc.coord.activate(ctx, conn, sc.side)
	return id, nil
}

// Submit queues text from the participant towards the broker. It does not
// wait for persistence, only for room in the queue.
func (sc *ServiceChannel) Submit(ctx context.Context, id ID, text string) error {
	p, err := sc.lookup(id)
	if err != nil {
		return err
	}
	msg := newMessage(p.conn, sc.side, text)
	select {
	case sc.toBroker <- msg:
		sc.log.Trace().
			Stringer("connection_id", msg.ConnectionID).
			Str("external_id", id.String()).
			Msg("Queued message for broker")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deactivate removes the participant and closes its mailbox. Unless the call
// is part of a coordinated teardown, the correlated participant on the other
// side is deactivated as well and that side's DeactivationListener is told.
// Deactivating an inactive id is a no-op.
func (sc *ServiceChannel) Deactivate(ctx context.Context, id ID, coordinated bool) {
	sc.lock.Lock()
	p, ok := sc.active[id]
	if ok {
		delete(sc.active, id)
		delete(sc.byConn, p.conn.ID())
	}
	sc.lock.Unlock()
	if !ok {
		sc.log.Info().Str("external_id", id.String()).Msg("Participant already inactive, ignoring deactivation")
		return
	}
	p.mailbox.close()
	sc.log.Debug().
		Str("external_id", id.String()).
		Stringer("connection_id", p.conn.ID()).
		Bool("coordinated", coordinated).
		Msg("Deactivated participant")
	if !coordinated {
		sc.coord.teardown(ctx, p.conn, sc.side)
	}
}

// Mailbox returns the queue the adapter drains to receive relayed messages.
func (sc *ServiceChannel) Mailbox(id ID) (*Mailbox, error) {
	p, err := sc.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.mailbox, nil
}

// Connection returns the active connection of a participant.
func (sc *ServiceChannel) Connection(id ID) (*Connection, error) {
	p, err := sc.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.conn, nil
}

// IsActive reports whether the id has an active participant.
func (sc *ServiceChannel) IsActive(id ID) bool {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	_, ok := sc.active[id]
	return ok
}

// ActiveCount returns the number of active participants.
func (sc *ServiceChannel) ActiveCount() int {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	return len(sc.active)
}

func (sc *ServiceChannel) lookup(id ID) (*participant, error) {
	if err := id.checkKind(sc.kind); err != nil {
		return nil, fmt.Errorf("%s: %w", sc.name, err)
	}
	sc.lock.RLock()
	p, ok := sc.active[id]
	sc.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no active participant %s", ErrUnknownConnection, sc.name, id)
	}
	return p, nil
}

// activeConnection returns the live connection of an external id, if any.
func (sc *ServiceChannel) activeConnection(id ID) *Connection {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	if p, ok := sc.active[id]; ok {
		return p.conn
	}
	return nil
}

// connectionByID returns the live connection with the given connection id.
func (sc *ServiceChannel) connectionByID(connID uuid.UUID) *Connection {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	if id, ok := sc.byConn[connID]; ok {
		return sc.active[id].conn
	}
	return nil
}

// activate registers the connection's participant on this side. If it is
// already active and fresh is set, its mailbox is replaced and the old one is
// closed so a stale reader stops.
func (sc *ServiceChannel) activate(conn *Connection, fresh bool) {
	id := conn.SideID(sc.side)
	sc.lock.Lock()
	p, ok := sc.active[id]
	var stale *Mailbox
	switch {
	case !ok:
		sc.active[id] = &participant{conn: conn, mailbox: newMailbox()}
		sc.byConn[conn.ID()] = id
	case fresh:
		stale = p.mailbox
		p.mailbox = newMailbox()
		p.conn = conn
	default:
		p.conn = conn
	}
	sc.lock.Unlock()
	if stale != nil {
		stale.close()
	}
	sc.log.Debug().
		Str("external_id", id.String()).
		Stringer("connection_id", conn.ID()).
		Bool("already_active", ok).
		Msg("Activated participant")
}

// deliver hands a message brokered for this side to the participant. A side
// with a MessageSink is push-only and its mailboxes stay empty; otherwise the
// message is queued for the adapter to drain.
func (sc *ServiceChannel) deliver(ctx context.Context, msg *Message) {
	sc.lock.RLock()
	var mailbox *Mailbox
	if id, ok := sc.byConn[msg.ConnectionID]; ok {
		mailbox = sc.active[id].mailbox
	}
	sc.lock.RUnlock()
	if mailbox == nil {
		sc.log.Debug().
			Stringer("connection_id", msg.ConnectionID).
			Msg("Connection not active on this side, message not delivered")
		return
	}
	if _, _, sink, _ := sc.capabilities(); sink != nil {
		sink.OnMessage(ctx, msg)
		return
	}
	if !mailbox.put(msg) {
		sc.log.Debug().
			Stringer("connection_id", msg.ConnectionID).
			Msg("Mailbox closed, message not delivered")
	}
}
