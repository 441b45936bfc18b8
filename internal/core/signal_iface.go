package core

import (
	"errors"

	"github.com/dkeye/voicerelay/internal/domain"
)

//go:generate mockgen -source=signal_iface.go -destination=mock_core/conn_mock.go -package=mock_core

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw binary payload (e.g., audio frame).
type Frame []byte

// Conn abstracts a participant's transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() domain.ConnID
	// TrySend queues m for delivery without blocking.
	// It returns ErrBackpressure when the outbound queue is full
	// and ErrConnClosed after Close.
	TrySend(m Message) error
	Close()
}
