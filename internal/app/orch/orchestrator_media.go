package orch

import (
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

// voice relays the payload to the sender's peers. With no rooms it is a no-op.
func (o *Orchestrator) voice(id domain.ConnID, m core.Message) {
	o.Relay.Broadcast(id, m.Payload)
}

// OnFrame is the fast path used by transports that receive raw voice frames.
func (o *Orchestrator) OnFrame(id domain.ConnID, data core.Frame) {
	o.Handle(id, core.VoiceMessage(data))
}
