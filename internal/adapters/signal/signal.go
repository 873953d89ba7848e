// Package signal is the websocket transport shim: one logical
// connection per participant, JSON messages dispatched by type to the
// directory and relay.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/config"
	"github.com/jspiers/huddle/internal/directory"
	"github.com/jspiers/huddle/internal/domain"
	"github.com/jspiers/huddle/internal/relay"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
	ErrUnknownConn  = errors.New("unknown connection")
)

const writeWait = 5 * time.Second

// Conn wraps one websocket with a buffered outbound channel. The write
// pump is the only writer to the socket.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, 32)}
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// Hub is the live connection registry. It implements relay.Transport:
// sends to unknown connection ids report an error that the relay drops
// silently, which is the deny-by-absence routing of the protocol.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ConnectionID]*Conn)}
}

func (h *Hub) register(id domain.ConnectionID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = c
}

func (h *Hub) unregister(id domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *Hub) lookup(id domain.ConnectionID) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Send marshals v and queues it for target's write pump.
func (h *Hub) Send(target domain.ConnectionID, v any) error {
	c, ok := h.lookup(target)
	if !ok {
		return ErrUnknownConn
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

// Controller upgrades connections and runs the per-connection pumps.
type Controller struct {
	Dir   *directory.Store
	Relay *relay.Relay
	Hub   *Hub

	readLimit  int64
	pingPeriod time.Duration
	joinLimit  *JoinRateLimiter
}

func NewController(cfg *config.Config, dir *directory.Store, rel *relay.Relay, hub *Hub) *Controller {
	ctl := &Controller{
		Dir:        dir,
		Relay:      rel,
		Hub:        hub,
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
	}
	if cfg.JoinRateLimit > 0 {
		ctl.joinLimit = NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow)
	}
	return ctl
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and binds a fresh connection id.
// Connection ids are never reused; a reconnect is a new participant.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	connID := domain.ConnectionID(uuid.NewString())
	conn := newConn(ws)
	ctl.Hub.register(connID, conn)
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)

	ctl.sendJSON(conn, struct {
		Type     string              `json:"type"`
		SocketID domain.ConnectionID `json:"socketId"`
	}{Type: "connected", SocketID: connID})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}
