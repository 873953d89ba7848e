package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the connection lifecycle: when it exits for any reason
// the connection runs the full leave flow, so transport-level disconnect
// and explicit leave-room converge on the same cleanup.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, connID domain.ConnectionID, c *Conn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
		ctl.onDisconnect(connID)
		ctl.Hub.unregister(connID)
		if ctl.joinLimit != nil {
			ctl.joinLimit.Forget(connID)
		}
		cancel()
		c.Close()
	}()

	c.ws.SetReadLimit(ctl.readLimit)
	pongWait := ctl.pingPeriod + ctl.pingPeriod/2
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(connID, c, data)
		}
	}
}

func (ctl *Controller) dispatch(connID domain.ConnectionID, c *Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoinRoom(connID, c, data)
	case "leave-room":
		ctl.handleLeaveRoom(connID, c)
	case "offer":
		ctl.handleOffer(connID, data)
	case "answer":
		ctl.handleAnswer(connID, data)
	case "ice-candidate":
		ctl.handleCandidate(connID, data)
	case "media-state-change":
		ctl.handleMediaStateChange(connID, data)
	case "screen-share-start":
		ctl.Relay.BroadcastScreenShare(connID, true)
	case "screen-share-stop":
		ctl.Relay.BroadcastScreenShare(connID, false)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
