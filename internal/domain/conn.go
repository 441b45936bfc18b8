// Package domain contains identifiers and entities without transport logic.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMalformedInput = errors.New("malformed input")
)

// ConnID identifies one live connection. Stable for the connection's lifetime.
type ConnID string

// NewConnID is assigned by the transport when a socket is accepted.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

type ConnState int

const (
	StateConnected ConnState = iota
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}
