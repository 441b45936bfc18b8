// Package orch holds the per-connection session coordinator.
package orch

import (
	"context"
	"errors"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	ReasonRoomNotFound   = "Room not found"
	ReasonRoomIDRequired = "Room id required"
	ReasonNotAMember     = "Not a member of this room"
	ReasonRateLimited    = "Too many rooms created, slow down"
	ReasonUnknownType    = "Unknown message type"
	ReasonInternal       = "Internal error"
)

type handlerFunc func(o *Orchestrator, id domain.ConnID, m core.Message)

// transitions is the inbound dispatch table.
var transitions = map[core.Kind]handlerFunc{
	core.KindCreateRoom: (*Orchestrator).createRoom,
	core.KindJoinRoom:   (*Orchestrator).joinRoom,
	core.KindLeaveRoom:  (*Orchestrator).leaveRoom,
	core.KindVoice:      (*Orchestrator).voice,
	core.KindPing:       (*Orchestrator).ping,
	core.KindWhoAmI:     (*Orchestrator).whoAmI,
	core.KindDisconnect: func(o *Orchestrator, id domain.ConnID, _ core.Message) { o.Disconnect(id) },
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomStore
	Relay    *app.Relay
	Limiter  *app.RateLimiter
	Metrics  *metrics.Metrics
}

func New(rooms core.RoomStore, reg *app.Registry, policy app.Policy, limiter *app.RateLimiter, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Relay:    &app.Relay{Rooms: rooms, Registry: reg, Policy: policy, Metrics: m},
		Limiter:  limiter,
		Metrics:  m,
	}
}

// Connect registers conn and greets it with its id.
func (o *Orchestrator) Connect(conn core.Conn, client string, cancel context.CancelFunc) bool {
	if !o.Registry.Register(conn, client, cancel) {
		log.Warn().Str("module", "orch").Str("conn", string(conn.ID())).Msg("duplicate connection id")
		return false
	}
	o.reply(conn.ID(), core.Message{Kind: core.KindWelcome, ConnID: conn.ID()})
	return true
}

// Handle runs one inbound message through the dispatch table.
// A panicking handler is reported to the requester and never escapes.
func (o *Orchestrator) Handle(id domain.ConnID, m core.Message) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("module", "orch").Str("conn", string(id)).Str("kind", string(m.Kind)).Interface("panic", p).Msg("handler panicked")
			o.reply(id, core.ErrorMessage(ReasonInternal))
		}
	}()

	if o.Registry.State(id) == domain.StateDisconnected {
		return
	}
	h, ok := transitions[m.Kind]
	if !ok {
		log.Warn().Str("module", "orch").Str("conn", string(id)).Str("kind", string(m.Kind)).Msg("unknown message")
		o.reply(id, core.ErrorMessage(ReasonUnknownType))
		return
	}
	if m.Kind != core.KindVoice {
		o.Metrics.ControlMessage(string(m.Kind))
	}
	h(o, id, m)
}

// Disconnect removes id from every room, tells the remaining members and
// drops the connection. Only the first call per connection does anything.
func (o *Orchestrator) Disconnect(id domain.ConnID) bool {
	conn, ok := o.Registry.Remove(id)
	if !ok {
		return false
	}
	departures := o.Rooms.LeaveAll(id)
	for _, d := range departures {
		o.notifyLeft(id, d)
	}
	conn.Close()
	log.Info().Str("module", "orch").Str("conn", string(id)).Int("rooms_left", len(departures)).Msg("disconnected")
	return true
}

func (o *Orchestrator) ping(id domain.ConnID, _ core.Message) {
	o.reply(id, core.Message{Kind: core.KindPong})
}

func (o *Orchestrator) whoAmI(id domain.ConnID, _ core.Message) {
	o.reply(id, core.Message{Kind: core.KindWhoAmI, ConnID: id, Rooms: o.Rooms.RoomsOf(id)})
}

// reply sends m to id only. Delivery failures are logged and dropped.
func (o *Orchestrator) reply(id domain.ConnID, m core.Message) {
	conn, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	if err := conn.TrySend(m); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(id)).Str("kind", string(m.Kind)).Msg("reply dropped")
	}
}

// notify sends m to every id in targets except skip.
func (o *Orchestrator) notify(targets []domain.ConnID, skip domain.ConnID, m core.Message) {
	for _, t := range targets {
		if t == skip {
			continue
		}
		o.reply(t, m)
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return ReasonRoomNotFound
	case errors.Is(err, domain.ErrMalformedInput):
		return ReasonRoomIDRequired
	case errors.Is(err, app.ErrRateLimited):
		return ReasonRateLimited
	}
	return ReasonInternal
}
