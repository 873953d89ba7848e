// Package client is the participant side of the signaling protocol: a
// websocket connection to the server plus the negotiation policy layer
// toward every other member of the room.
package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jspiers/huddle/internal/config"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	incoming chan []byte
	outgoing chan any
	done     chan struct{}
	closed   bool
}

// Dial connects to the server's /ws endpoint.
func Dial(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan []byte, 32),
		outgoing: make(chan any, 32),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.incoming <- data
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case v := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(v any) {
	select {
	case c.outgoing <- v:
	case <-c.done:
	}
}

// Incoming returns the channel of raw server messages.
func (c *Client) Incoming() <-chan []byte {
	return c.incoming
}

// Close shuts the connection down.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// FetchICEServers asks the server's connectivity-configuration endpoint
// for the STUN/TURN descriptors to hand the engine. Called once per
// session before any peer link is created.
func FetchICEServers(apiBase string) ([]config.ICEServer, error) {
	resp, err := http.Get(apiBase + "/api/ice")
	if err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}
	return body.ICEServers, nil
}
