// Copyright 2024-2026 Aiku AI

package chatbox

import "context"

// Allocator produces a correlated id on its own side when the other side
// accesses an id that has no connection yet. The returned id must be of the
// allocating side's declared kind.
type Allocator interface {
	Allocate(ctx context.Context, peerID ID) (ID, error)
}

// DeactivationListener is told when the participant on the other side of a
// connection went away, so the local adapter can release its resources.
type DeactivationListener interface {
	OnDeactivated(ctx context.Context, conn *Connection, origin Side)
}

// MessageSink is pushed every message the broker delivers to its side. A side
// with a sink does not fill its participants' mailboxes.
type MessageSink interface {
	OnMessage(ctx context.Context, msg *Message)
}

// ReachableListener is told when a participant of the other side has been
// activated on a connection.
type ReachableListener interface {
	OnReachable(ctx context.Context, conn *Connection, origin Side)
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(ctx context.Context, peerID ID) (ID, error)

func (f AllocatorFunc) Allocate(ctx context.Context, peerID ID) (ID, error) {
	return f(ctx, peerID)
}

// DeactivationListenerFunc adapts a function to the DeactivationListener interface.
type DeactivationListenerFunc func(ctx context.Context, conn *Connection, origin Side)

func (f DeactivationListenerFunc) OnDeactivated(ctx context.Context, conn *Connection, origin Side) {
	f(ctx, conn, origin)
}

// MessageSinkFunc adapts a function to the MessageSink interface.
type MessageSinkFunc func(ctx context.Context, msg *Message)

func (f MessageSinkFunc) OnMessage(ctx context.Context, msg *Message) {
	f(ctx, msg)
}

// ReachableListenerFunc adapts a function to the ReachableListener interface.
type ReachableListenerFunc func(ctx context.Context, conn *Connection, origin Side)

func (f ReachableListenerFunc) OnReachable(ctx context.Context, conn *Connection, origin Side) {
	f(ctx, conn, origin)
}
