package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Hush/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

func (ctl *SignalWSController) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		ctl.hub.Unregister(c.id)
		log.Debug().Str("module", "signal").Str("endpoint", string(c.id)).Msg("readPump closing")
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("readPump read error")
			}
			return
		}

		msg, err := protocol.DecodeFromClient(data)
		if err != nil {
			ctl.reject(c, err)
			continue
		}
		if err := ctl.hub.Dispatch(ctx, c.id, msg); err != nil {
			return
		}
	}
}

// reject answers a malformed frame with an error event and keeps the
// connection open.
func (ctl *SignalWSController) reject(c *WsSignalConn, cause error) {
	code := protocol.CodeBadMessage
	if errors.Is(cause, protocol.ErrUnknownEvent) || errors.Is(cause, protocol.ErrWrongDirection) {
		code = protocol.CodeUnknownEvent
	}
	log.Warn().Err(cause).Str("module", "signal").Str("endpoint", string(c.id)).Msg("rejected frame")

	frame, err := protocol.Encode(protocol.Error{Code: code, Message: cause.Error()})
	if err != nil {
		return
	}
	_ = c.TrySend(frame)
}
