// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Mailbox.Get once the participant has been
// deactivated and every queued message has been drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is the unbounded FIFO of messages waiting to be delivered to one
// participant of one side. Only the broker writes to it; only the owning
// adapter reads from it.
type Mailbox struct {
	mu       sync.Mutex
	messages []*Message
	closed   bool
	// signal is buffered with size 1 so that multiple puts coalesce.
	signal chan struct{}
	done   chan struct{}
}

func newMailbox() *Mailbox {
	return &Mailbox{
		messages: make([]*Message, 0, 16),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// put appends a message. It returns false if the mailbox is closed.
func (mb *Mailbox) put(msg *Message) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return false
	}
	mb.messages = append(mb.messages, msg)
	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

// TryGet removes and returns the oldest message without blocking.
func (mb *Mailbox) TryGet() (*Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.messages) == 0 {
		return nil, false
	}
	msg := mb.messages[0]
	mb.messages[0] = nil
	if len(mb.messages) == 1 {
		mb.messages = mb.messages[:0]
	} else {
		mb.messages = mb.messages[1:]
	}
	return msg, true
}

// Get blocks until a message is available, the mailbox is closed and empty,
// or ctx is done.
func (mb *Mailbox) Get(ctx context.Context) (*Message, error) {
	for {
		if msg, ok := mb.TryGet(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mb.done:
			// Drain anything that raced with close.
			if msg, ok := mb.TryGet(); ok {
				return msg, nil
			}
			return nil, ErrMailboxClosed
		case <-mb.signal:
		}
	}
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}

// Done is closed when the mailbox is closed.
func (mb *Mailbox) Done() <-chan struct{} {
	return mb.done
}

func (mb *Mailbox) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
}
