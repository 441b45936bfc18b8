package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Transport-level kinds handled by the adapter itself.
const (
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
)

type wireCandidate struct {
	Candidate     string  `json:"candidate" msgpack:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
}

// envelope is the wire shape of every message in both codecs.
type envelope struct {
	Type      string         `json:"type" msgpack:"type"`
	RoomID    string         `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	ConnID    string         `json:"connId,omitempty" msgpack:"connId,omitempty"`
	Members   []string       `json:"members,omitempty" msgpack:"members,omitempty"`
	Rooms     []string       `json:"rooms,omitempty" msgpack:"rooms,omitempty"`
	Error     string         `json:"error,omitempty" msgpack:"error,omitempty"`
	Payload   []byte         `json:"-" msgpack:"payload,omitempty"`
	SDP       string         `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *wireCandidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
}

// Codec maps envelopes to websocket frames.
type Codec interface {
	Name() string
	Encode(env envelope) (messageType int, data []byte, err error)
	Decode(messageType int, data []byte) (envelope, error)
}

// JSONCodec sends control messages as JSON text frames and voice as raw
// binary frames.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(env envelope) (int, []byte, error) {
	if env.Type == string(core.KindVoice) {
		return websocket.BinaryMessage, env.Payload, nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return 0, nil, fmt.Errorf("json encode %s: %w", env.Type, err)
	}
	return websocket.TextMessage, b, nil
}

func (JSONCodec) Decode(messageType int, data []byte) (envelope, error) {
	if messageType == websocket.BinaryMessage {
		return envelope{Type: string(core.KindVoice), Payload: data}, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("%w: missing type", domain.ErrMalformedInput)
	}
	// voice travels as binary frames only
	if env.Type == string(core.KindVoice) {
		return envelope{}, fmt.Errorf("%w: voice in text frame", domain.ErrMalformedInput)
	}
	return env, nil
}

// MsgpackCodec carries every message, voice included, as a msgpack envelope
// in a binary frame.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(env envelope) (int, []byte, error) {
	b, err := msgpack.Marshal(&env)
	if err != nil {
		return 0, nil, fmt.Errorf("msgpack encode %s: %w", env.Type, err)
	}
	return websocket.BinaryMessage, b, nil
}

func (MsgpackCodec) Decode(messageType int, data []byte) (envelope, error) {
	if messageType != websocket.BinaryMessage {
		return envelope{}, fmt.Errorf("%w: msgpack expects binary frames", domain.ErrMalformedInput)
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("%w: missing type", domain.ErrMalformedInput)
	}
	if env.Type == string(core.KindVoice) && len(env.Payload) == 0 {
		return envelope{}, fmt.Errorf("%w: empty voice payload", domain.ErrMalformedInput)
	}
	return env, nil
}

func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSONCodec{}, true
	case "msgpack":
		return MsgpackCodec{}, true
	}
	return nil, false
}

func toEnvelope(m core.Message) envelope {
	env := envelope{
		Type:    string(m.Kind),
		RoomID:  string(m.RoomID),
		ConnID:  string(m.ConnID),
		Error:   m.Error,
		Payload: m.Payload,
	}
	for _, id := range m.Members {
		env.Members = append(env.Members, string(id))
	}
	for _, id := range m.Rooms {
		env.Rooms = append(env.Rooms, string(id))
	}
	return env
}

func toMessage(env envelope) core.Message {
	return core.Message{
		Kind:    core.Kind(env.Type),
		RoomID:  domain.RoomID(env.RoomID),
		Payload: env.Payload,
	}
}
