package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/adapters/rtc"
	"github.com/dkeye/voicerelay/internal/app/orch"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowedOrigins []string
	ICEServers     []string
}

func (o *Options) withDefaults() {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts.withDefaults()
	return &SignalWSController{
		Orch: o,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		log.Warn().Str("module", "signal").Str("origin", origin).Msg("origin rejected")
		return false
	}
}

// mediaChannel is the optional voice path negotiated over WebRTC.
type mediaChannel interface {
	Ready() bool
	TrySend(f core.Frame) error
	AddICECandidate(ci webrtc.ICECandidateInit) error
	Close()
}

var _ mediaChannel = (*rtc.Connection)(nil)

// WsSignalConn is the websocket endpoint of one participant.
// It implements core.Conn.
type WsSignalConn struct {
	id    domain.ConnID
	conn  *websocket.Conn
	codec Codec
	send  chan envelope

	mu     sync.RWMutex
	closed bool
	media  mediaChannel
}

func newWsSignalConn(id domain.ConnID, ws *websocket.Conn, codec Codec, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:    id,
		conn:  ws,
		codec: codec,
		send:  make(chan envelope, buffer),
	}
}

func (c *WsSignalConn) ID() domain.ConnID { return c.id }

// TrySend routes voice to the data channel once it is open and to the
// websocket otherwise. A ready data channel is the only voice queue, so its
// errors are returned as is and frames keep their order.
func (c *WsSignalConn) TrySend(m core.Message) error {
	if m.Kind == core.KindVoice {
		if mc := c.Media(); mc != nil && mc.Ready() {
			return mc.TrySend(m.Payload)
		}
	}
	return c.trySendEnvelope(toEnvelope(m))
}

func (c *WsSignalConn) trySendEnvelope(env envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- env:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	media := c.media
	c.media = nil
	c.mu.Unlock()

	if media != nil {
		media.Close()
	}
	_ = c.conn.Close()
}

func (c *WsSignalConn) Media() mediaChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.media
}

// SetMedia attaches mc and returns the previous connection, if any.
func (c *WsSignalConn) SetMedia(mc mediaChannel) (mediaChannel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	old := c.media
	c.media = mc
	return old, true
}

// HandleSignal upgrades the request and runs the connection until it ends.
// The connection context derives from ctx, not from the request.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	codec, ok := CodecByName(c.Query("codec"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown codec"})
		return
	}
	client := c.GetString("client_token")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewConnID()
	conn := newWsSignalConn(id, ws, codec, ctl.opts.SendBuffer)
	connCtx, cancel := context.WithCancel(ctx)
	if !ctl.Orch.Connect(conn, client, cancel) {
		cancel()
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", client).Str("codec", codec.Name()).Msg("new WS connection")

	go ctl.serve(connCtx, cancel, conn)
}

// serve supervises both pumps and runs the disconnect path exactly once
// when either of them stops.
func (ctl *SignalWSController) serve(ctx context.Context, cancel context.CancelFunc, conn *WsSignalConn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.conn.Close() })
	defer stop()

	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	})
	wg.Go(func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	})
	if r := wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "signal").Str("conn", string(conn.id)).Str("panic", r.String()).Msg("pump panicked")
	}
	cancel()
	ctl.Orch.Disconnect(conn.id)
}
