package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultRoomCodeLength = 6
	MaxRoomIDLen          = 32
	roomCodeAlphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// RoomID is a short human-shareable code.
type RoomID string

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// NewRoomCode returns a random lowercase alphanumeric code of length n.
func NewRoomCode(n int) RoomID {
	if n <= 0 {
		n = DefaultRoomCodeLength
	}
	limit := big.NewInt(int64(len(roomCodeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = roomCodeAlphabet[idx.Int64()]
	}
	return RoomID(b)
}

// ParseRoomID validates a client supplied room id.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrMalformedInput
	}
	return RoomID(raw), nil
}
