package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gssiot/sitewatch/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Envelope is the frame written to websocket subscribers.
type Envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

type outbound struct {
	channel string
	data    []byte
}

// Hub fans updates out to websocket subscribers. Subscribers that fall
// behind are disconnected.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: m,
		log:     log.With("component", "hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.count.Store(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			h.log.Debug("subscriber registered", "client", c.id, "channels", c.channelList())
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
				h.log.Debug("subscriber unregistered", "client", c.id)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.log.Warn("subscriber too slow, disconnecting", "client", c.id)
					h.metrics.FanoutDropped.Inc()
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Subscribers is the number of connected websocket subscribers.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Emit queues payload for the subscribers of channel. It never blocks; the
// update is dropped if the hub is saturated or stopped.
func (h *Hub) Emit(channel string, payload any) {
	data, err := json.Marshal(Envelope{Channel: channel, Payload: payload})
	if err != nil {
		h.log.Warn("marshal live update", "channel", channel, "err", err)
		return
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- outbound{channel: channel, data: data}:
		h.metrics.FanoutEmits.WithLabelValues("ws").Inc()
	default:
		h.metrics.FanoutDropped.Inc()
	}
}

// ServeHTTP upgrades the request and subscribes it to the comma separated
// channels query parameter, or to everything when it is empty.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &Client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: parseChannels(r.URL.Query().Get("channels")),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func parseChannels(q string) map[string]bool {
	out := make(map[string]bool)
	for _, ch := range strings.Split(q, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out[ch] = true
		}
	}
	return out
}

// Client is one websocket subscriber.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
}

func (c *Client) wants(channel string) bool {
	return len(c.channels) == 0 || c.channels[channel]
}

func (c *Client) channelList() []string {
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// readPump only services control frames; subscribers do not send data.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", "client", c.id, "err", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.Debug("websocket write error", "client", c.id, "err", err)
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
