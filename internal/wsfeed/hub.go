// Package wsfeed is the /ws/trade WebSocket transport: clients subscribe to
// orderbook/trade channels and receive a fan-out feed. It replaces the
// original engine's actix-web-actors transport with gorilla/websocket, the
// library the rest of this corpus's EVM-lineage repos reach for the same
// job.
package wsfeed

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	heartbeatInterval = 5 * time.Second
	clientTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SubscribeMessage is a client's inbound subscription request.
type SubscribeMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// outMessage is any server-to-client payload.
type outMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Broadcaster delivers a channel/payload pair to every subscriber, whether
// they're connected to this process or, via RedisBroadcaster, another one.
type Broadcaster interface {
	Publish(channel string, payload interface{})
}

type client struct {
	conn     *websocket.Conn
	send     chan outMessage
	channels map[string]bool
	mu       sync.Mutex
}

func (c *client) subscribed(ch string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch]
}

func (c *client) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = true
	}
}

// Hub tracks connected clients and fans out messages to whichever of them
// subscribed to a matching channel.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub constructs an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "wsfeed").Logger(),
		clients: make(map[*client]bool),
	}
}

// Publish implements Broadcaster, delivering payload to every local client
// subscribed to exactly the given channel name (e.g. "orderbook:SOL/USDT").
func (h *Hub) Publish(channel string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := outMessage{Type: channelType(channel), Data: payload}
	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warn().Msg("wsfeed: client send buffer full, dropping message")
		}
	}
}

func channelType(channel string) string {
	if strings.HasPrefix(channel, "orderbook:") {
		return "orderbook"
	}
	if strings.HasPrefix(channel, "trades:") {
		return "trade"
	}
	return "message"
}

// ServeHTTP upgrades an HTTP request to a WebSocket and runs the connection
// until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("wsfeed: upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan outMessage, 32), channels: make(map[string]bool)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.TextMessage:
			h.handleText(c, data)
		case websocket.BinaryMessage:
			h.log.Warn().Msg("wsfeed: binary messages not supported")
		}
	}
}

func (h *Hub) handleText(c *client, data []byte) {
	var sub SubscribeMessage
	if err := json.Unmarshal(data, &sub); err != nil {
		return
	}
	if sub.Type != "subscribe" {
		return
	}
	c.subscribe(sub.Channels)
	c.send <- outMessage{Type: "subscribed", Data: sub.Channels}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close()
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
