// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection correlates one side-1 id with one side-2 id.
//
// The identity fields are immutable. The property bag and the history are
// guarded by an internal lock because the broker appends to the history
// while adapters read it.
type Connection struct {
	id        uuid.UUID
	side1     ID
	side2     ID
	createdAt time.Time

	mu           sync.RWMutex
	properties   map[string]any
	history      []*Message
	historyCount int
}

// NewConnection builds a connection with a freshly minted id. Both side ids
// must already be resolved.
func NewConnection(side1, side2 ID) (*Connection, error) {
	if side1.IsZero() || side2.IsZero() {
		return nil, fmt.Errorf("%w: connection needs both side ids", ErrIdentityType)
	}
	return &Connection{
		id:         uuid.New(),
		side1:      side1,
		side2:      side2,
		createdAt:  time.Now().UTC(),
		properties: make(map[string]any),
	}, nil
}

// ID returns the process-wide unique connection id.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) Side1ID() ID {
	return c.side1
}

func (c *Connection) Side2ID() ID {
	return c.side2
}

// SideID returns the external id the connection has on the given side.
func (c *Connection) SideID(side Side) ID {
	if side == Side1 {
		return c.side1
	}
	return c.side2
}

func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// Property returns a value from the property bag.
func (c *Connection) Property(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.properties[key]
	return val, ok
}

// SetProperty stores a JSON-serializable value in the property bag.
func (c *Connection) SetProperty(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[key] = val
}

// Properties returns a copy of the property bag.
func (c *Connection) Properties() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.properties)
}

func (c *Connection) marshalProperties() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.properties)
}

// History returns every known message of the connection, persisted ones
// first, in submission order.
func (c *Connection) History() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Message, len(c.history))
	copy(out, c.history)
	return out
}

// HistoryCount is the number of messages durably persisted.
func (c *Connection) HistoryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyCount
}

// Unsaved returns the messages relayed but not (yet) persisted.
func (c *Connection) Unsaved() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Message, len(c.history)-c.historyCount)
	copy(out, c.history[c.historyCount:])
	return out
}

// record adds a relayed message to the in-memory history. saved messages are
// counted as persisted; unsaved ones trail behind them.
func (c *Connection) record(msg *Message, saved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if saved && c.historyCount == len(c.history) {
		c.history = append(c.history, msg)
		c.historyCount++
		return
	}
	if saved {
		// Keep persisted messages contiguous at the front.
		c.history = append(c.history, nil)
		copy(c.history[c.historyCount+1:], c.history[c.historyCount:])
		c.history[c.historyCount] = msg
		c.historyCount++
		return
	}
	c.history = append(c.history, msg)
}
