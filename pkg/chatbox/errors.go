// Copyright 2024-2026 Aiku AI

package chatbox

import "errors"

var (
	// ErrIdentityType means an id does not match the side's declared kind,
	// or an id was omitted on a side that cannot generate one.
	ErrIdentityType = errors.New("identity type mismatch")
	// ErrUnknownConnection means the id has no active participant on the side.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrAllocation means the peer side failed to produce a correlated id.
	ErrAllocation = errors.New("allocation failed")
	// ErrPersistence means the store could not write a row.
	ErrPersistence = errors.New("persistence failed")
	// ErrConnectionNotFound means no connection is stored for the id.
	ErrConnectionNotFound = errors.New("connection not found")
)
