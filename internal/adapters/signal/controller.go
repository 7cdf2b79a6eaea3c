package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Hush/internal/core"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub is the event loop connections feed into.
type Hub interface {
	Register(ctx context.Context, ep core.Endpoint) error
	Unregister(id domain.EndpointID)
	Dispatch(ctx context.Context, from domain.EndpointID, msg protocol.Message) error
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	hub  Hub
	opts Options
}

func NewSignalWSController(hub Hub, opts Options) *SignalWSController {
	return &SignalWSController{hub: hub, opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newConn(ws, token, ctl.opts.SendBuffer)
	go ctl.writePump(conn)

	if err := ctl.hub.Register(ctx, conn); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("hub refused connection")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("endpoint", string(conn.id)).Msg("new WS connection")

	go ctl.readPump(ctx, conn)
}
