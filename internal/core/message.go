package core

import "github.com/dkeye/voicerelay/internal/domain"

// Kind tags a Message. Inbound and outbound kinds share one namespace.
type Kind string

const (
	KindCreateRoom Kind = "create-room"
	KindJoinRoom   Kind = "join-room"
	KindLeaveRoom  Kind = "leave-room"
	KindVoice      Kind = "voice"
	KindPing       Kind = "ping"
	KindWhoAmI     Kind = "whoami"
	KindDisconnect Kind = "disconnect"

	KindWelcome     Kind = "welcome"
	KindRoomCreated Kind = "room-created"
	KindRoomJoined  Kind = "room-joined"
	KindRoomLeft    Kind = "room-left"
	KindUserJoined  Kind = "user-joined"
	KindUserLeft    Kind = "user-left"
	KindPong        Kind = "pong"
	KindError       Kind = "error"
)

// Message is the transport-agnostic variant exchanged between a connection
// and the session coordinator. Only the fields relevant to Kind are set.
type Message struct {
	Kind    Kind
	RoomID  domain.RoomID
	ConnID  domain.ConnID
	Members []domain.ConnID
	Rooms   []domain.RoomID
	Error   string
	Payload Frame
}

func ErrorMessage(reason string) Message {
	return Message{Kind: KindError, Error: reason}
}

func VoiceMessage(payload Frame) Message {
	return Message{Kind: KindVoice, Payload: payload}
}
