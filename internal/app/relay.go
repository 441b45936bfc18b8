package app

import (
	"errors"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Relay fans voice frames out to the sender's peers.
type Relay struct {
	Rooms    core.RoomStore
	Registry *Registry
	Policy   Policy
	Metrics  *metrics.Metrics
}

// Broadcast delivers payload unmodified to every peer of sender. Each target
// is attempted independently; failures are recorded in the result and never
// abort the remaining fan-out. The store lock is not held while sending.
func (r *Relay) Broadcast(sender domain.ConnID, payload core.Frame) core.PublishResult {
	res := core.PublishResult{}
	peers := r.Rooms.Peers(sender)
	if len(peers) == 0 {
		return res
	}

	msg := core.VoiceMessage(payload)
	for _, target := range peers {
		err := r.deliver(target, msg)
		if err != nil {
			res.Dropped = append(res.Dropped, target)
			r.onDropped(target, err)
			continue
		}
		res.SendTo++
	}

	r.Metrics.Relayed(res.SendTo, len(res.Dropped), len(payload))
	log.Debug().Str("module", "app.relay").Str("from", string(sender)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Relay) deliver(target domain.ConnID, msg core.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("module", "app.relay").Str("target", string(target)).Interface("panic", p).Msg("delivery panicked")
			err = core.ErrConnClosed
		}
	}()
	conn, ok := r.Registry.Get(target)
	if !ok {
		return core.ErrConnClosed
	}
	return conn.TrySend(msg)
}

func (r *Relay) onDropped(target domain.ConnID, err error) {
	log.Debug().Err(err).Str("module", "app.relay").Str("target", string(target)).Msg("frame dropped")
	if r.Policy == nil || !errors.Is(err, core.ErrBackpressure) {
		return
	}
	switch r.Policy.OnBackPressure(target, err) {
	case KickMember:
		log.Warn().Str("module", "app.relay").Str("target", string(target)).Msg("kicking slow member")
		r.Registry.Cancel(target)
	case DropFrame:
	}
}
