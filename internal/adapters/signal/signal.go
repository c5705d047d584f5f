package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

// Options are the per-connection transport limits.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	Opts Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch: o,
		Opts: opts,
	}
}

// wsSignalConn is the core.EventSink of one websocket.
type wsSignalConn struct {
	id    core.ConnID
	conn  *websocket.Conn
	codec Codec
	send  chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) Send(ev core.Outbound) error {
	b, err := c.codec.Encode(ev)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	codec, ok := CodecFor(c.Query("codec"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown codec"})
		return
	}

	id := core.ConnID(uuid.NewString())
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().
		Str("module", "signal").
		Str("conn", string(id)).
		Str("client", c.GetString("client_token")).
		Str("codec", codec.Name()).
		Msg("new WS connection")

	conn := &wsSignalConn{
		id:    id,
		conn:  ws,
		codec: codec,
		send:  make(chan []byte, ctl.Opts.SendBuffer),
	}
	ctl.Orch.Connect(id, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}
