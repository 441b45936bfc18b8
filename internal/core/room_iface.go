package core

import (
	"time"

	"github.com/dkeye/voicerelay/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ConnID
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Departure describes one room a connection was removed from.
type Departure struct {
	RoomID    domain.RoomID
	Deleted   bool
	Remaining []domain.ConnID
}

// RoomStore is the authoritative membership state.
// A room never exists with an empty member set.
type RoomStore interface {
	CreateRoom(creator domain.ConnID) domain.RoomID
	JoinRoom(room domain.RoomID, conn domain.ConnID) (added bool, err error)
	LeaveRoom(room domain.RoomID, conn domain.ConnID) (deleted bool)
	LeaveAll(conn domain.ConnID) []Departure

	MembersOf(room domain.RoomID) []domain.ConnID
	RoomsOf(conn domain.ConnID) []domain.RoomID
	// Peers returns every member sharing at least one room with conn,
	// excluding conn itself. Each peer appears once.
	Peers(conn domain.ConnID) []domain.ConnID

	Exists(room domain.RoomID) bool
	Get(room domain.RoomID) (RoomInfo, bool)
	Len() int
	List() []RoomInfo
}
