package orch

import (
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) createRoom(id domain.ConnID, _ core.Message) {
	key := o.Registry.Client(id)
	if key == "" {
		key = string(id)
	}
	if !o.Limiter.Allow(key) {
		log.Warn().Str("module", "orch").Str("conn", string(id)).Str("client", key).Msg("create-room rate limited")
		o.reply(id, core.ErrorMessage(ReasonRateLimited))
		return
	}

	roomID := o.Rooms.CreateRoom(id)
	if !o.Registry.SetState(id, domain.StateActive) {
		// disconnected while creating
		o.Rooms.LeaveRoom(roomID, id)
		return
	}
	o.reply(id, core.Message{Kind: core.KindRoomCreated, RoomID: roomID})
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Msg("room created")
}

func (o *Orchestrator) joinRoom(id domain.ConnID, m core.Message) {
	roomID, err := domain.ParseRoomID(string(m.RoomID))
	if err != nil {
		o.reply(id, core.ErrorMessage(reasonFor(err)))
		return
	}
	added, err := o.Rooms.JoinRoom(roomID, id)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Msg("join failed")
		o.reply(id, core.ErrorMessage(reasonFor(err)))
		return
	}
	if !o.Registry.SetState(id, domain.StateActive) {
		o.Rooms.LeaveRoom(roomID, id)
		return
	}

	members := o.Rooms.MembersOf(roomID)
	o.reply(id, core.Message{Kind: core.KindRoomJoined, RoomID: roomID, Members: members})
	if !added {
		return
	}
	o.notify(members, id, core.Message{Kind: core.KindUserJoined, ConnID: id, RoomID: roomID})
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Int("members", len(members)).Msg("joined room")
}

func (o *Orchestrator) leaveRoom(id domain.ConnID, m core.Message) {
	roomID, err := domain.ParseRoomID(string(m.RoomID))
	if err != nil {
		o.reply(id, core.ErrorMessage(reasonFor(err)))
		return
	}
	if !o.isMember(id, roomID) {
		o.reply(id, core.ErrorMessage(ReasonNotAMember))
		return
	}
	deleted := o.Rooms.LeaveRoom(roomID, id)
	if len(o.Rooms.RoomsOf(id)) == 0 {
		o.Registry.SetState(id, domain.StateConnected)
	}
	o.reply(id, core.Message{Kind: core.KindRoomLeft, RoomID: roomID})
	if !deleted {
		o.notify(o.Rooms.MembersOf(roomID), id, core.Message{Kind: core.KindUserLeft, ConnID: id, RoomID: roomID})
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Bool("room_deleted", deleted).Msg("left room")
}

func (o *Orchestrator) notifyLeft(id domain.ConnID, d core.Departure) {
	if d.Deleted {
		return
	}
	o.notify(d.Remaining, id, core.Message{Kind: core.KindUserLeft, ConnID: id, RoomID: d.RoomID})
}

func (o *Orchestrator) isMember(id domain.ConnID, roomID domain.RoomID) bool {
	for _, r := range o.Rooms.RoomsOf(id) {
		if r == roomID {
			return true
		}
	}
	return false
}
