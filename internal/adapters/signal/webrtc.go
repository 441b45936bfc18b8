package signal

import (
	"context"
	"sync"

	"github.com/dkeye/voicerelay/internal/adapters/rtc"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	_ = c.trySendEnvelope(envelope{
		Type: typeCandidate,
		Candidate: &wireCandidate{
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		},
	})
}

// handleOffer negotiates a data channel that carries voice frames for c.
// Control messages stay on the websocket.
func (ctl *SignalWSController) handleOffer(ctx context.Context, c *WsSignalConn, env envelope) {
	if env.SDP == "" {
		_ = c.trySendEnvelope(envelope{Type: string(core.KindError), Error: reasonMalformed})
		return
	}

	wc, err := rtc.NewConnection(rtc.DefaultWebRTCConfig(ctl.opts.ICEServers), c.id, ctl.opts.SendBuffer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("webrtc new pc")
		return
	}
	// candidates gathered before the answer is queued are held back
	var (
		gateMu   sync.Mutex
		answered bool
		early    []webrtc.ICECandidateInit
	)
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		gateMu.Lock()
		if !answered {
			early = append(early, ci)
			gateMu.Unlock()
			return
		}
		gateMu.Unlock()
		ctl.sendCandidate(c, ci)
	})
	wc.OnFrame(func(f core.Frame) {
		ctl.Orch.OnFrame(c.id, f)
	})

	if err := wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("webrtc start")
		wc.Close()
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  env.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("webrtc apply offer")
		wc.Close()
		_ = c.trySendEnvelope(envelope{Type: string(core.KindError), Error: "Invalid offer"})
		return
	}

	old, ok := c.SetMedia(wc)
	if !ok {
		wc.Close()
		return
	}
	if old != nil {
		old.Close()
	}
	_ = c.trySendEnvelope(envelope{Type: typeAnswer, SDP: answer.SDP})

	gateMu.Lock()
	answered = true
	pending := early
	early = nil
	gateMu.Unlock()
	for _, ci := range pending {
		ctl.sendCandidate(c, ci)
	}
}

func (ctl *SignalWSController) handleCandidate(c *WsSignalConn, env envelope) {
	if env.Candidate == nil {
		return
	}
	mc := c.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("candidate: no media connection")
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     env.Candidate.Candidate,
		SDPMid:        env.Candidate.SDPMid,
		SDPMLineIndex: env.Candidate.SDPMLineIndex,
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("add ice candidate")
	}
}
