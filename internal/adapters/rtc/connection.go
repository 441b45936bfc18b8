// Package rtc carries voice frames over a WebRTC data channel as an
// alternative to the signaling websocket.
package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const VoiceChannelLabel = "voice"

type Connection struct {
	pc *webrtc.PeerConnection
	id domain.ConnID

	mu     sync.RWMutex
	dc     *webrtc.DataChannel
	send   chan core.Frame
	closed bool

	onICE    func(webrtc.ICECandidateInit)
	onFrame  func(core.Frame)
	onClosed func()

	writeOnce sync.Once
	closeOnce sync.Once
}

func DefaultWebRTCConfig(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		iceURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
	}
}

func NewConnection(cfg webrtc.Configuration, id domain.ConnID, sendBuffer int) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Connection{pc: pc, id: id, send: make(chan core.Frame, sendBuffer)}, nil
}

// Start installs callbacks and binds the connection lifetime to ctx.
func (c *Connection) Start(ctx context.Context) error {
	context.AfterFunc(ctx, c.Close)

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("conn", string(c.id)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.Close()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != VoiceChannelLabel {
			log.Warn().Str("module", "rtc").Str("conn", string(c.id)).Str("label", dc.Label()).Msg("ignoring data channel")
			return
		}
		dc.OnOpen(func() {
			c.mu.Lock()
			c.dc = dc
			c.mu.Unlock()
			log.Info().Str("module", "rtc").Str("conn", string(c.id)).Msg("voice channel open")
			c.writeOnce.Do(func() { go c.writeLoop() })
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString || c.onFrame == nil {
				return
			}
			frame := make(core.Frame, len(msg.Data))
			copy(frame, msg.Data)
			c.onFrame(frame)
		})
		dc.OnClose(func() {
			c.mu.Lock()
			if c.dc == dc {
				c.dc = nil
			}
			c.mu.Unlock()
			log.Info().Str("module", "rtc").Str("conn", string(c.id)).Msg("voice channel closed")
		})
	})
	return nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	// candidates trickle through OnICECandidate; gathering is not awaited
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// Ready reports whether the voice channel is open.
func (c *Connection) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.dc != nil
}

// TrySend queues a voice frame for the data channel without blocking.
func (c *Connection) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.dc == nil {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *Connection) writeLoop() {
	for f := range c.send {
		c.mu.RLock()
		dc := c.dc
		c.mu.RUnlock()
		if dc == nil {
			continue
		}
		if err := dc.Send(f); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("conn", string(c.id)).Msg("data channel send")
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.dc = nil
		close(c.send)
		c.mu.Unlock()

		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("conn", string(c.id)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("conn", string(c.id)).Msg("closed")
		}
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnFrame sets the callback for binary messages on the voice channel.
func (c *Connection) OnFrame(fn func(core.Frame)) { c.onFrame = fn }

func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }
