// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side names one of the two bridged services. The numeric value is the origin
// tag stored in the history table.
type Side int

const (
	Side1 Side = 0
	Side2 Side = 1
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

func (s Side) String() string {
	switch s {
	case Side1:
		return "side1"
	case Side2:
		return "side2"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is Side1 or Side2.
func (s Side) Valid() bool {
	return s == Side1 || s == Side2
}

// Message is one relayed utterance. Messages are immutable once created.
type Message struct {
	ConnectionID uuid.UUID
	Origin       Side
	Content      string
	CreatedAt    time.Time

	conn *Connection
}

func newMessage(conn *Connection, origin Side, content string) *Message {
	return &Message{
		ConnectionID: conn.ID(),
		Origin:       origin,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
		conn:         conn,
	}
}

// Connection returns the connection the message belongs to.
func (m *Message) Connection() *Connection {
	return m.conn
}

// SenderID returns the external id of the participant who sent the message.
func (m *Message) SenderID() ID {
	return m.conn.SideID(m.Origin)
}

// RecipientID returns the external id of the participant on the other side.
func (m *Message) RecipientID() ID {
	return m.conn.SideID(m.Origin.Other())
}
