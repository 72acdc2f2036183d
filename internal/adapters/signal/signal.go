package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/app"
	"github.com/astelio/consult/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type ChatWSController struct {
	App     *app.Controller
	limiter *MessageRateLimiter
}

func NewChatWSController(ctrl *app.Controller, limiter *MessageRateLimiter) *ChatWSController {
	return &ChatWSController{
		App:     ctrl,
		limiter: limiter,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	participant, err := ctl.App.Registry.GetOrCreateParticipant(sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejecting connection")
		_ = ws.Close()
		return
	}
	sess := core.NewMemberSession(participant, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.App.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
