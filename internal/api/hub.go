package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/engine"
	"bricktok/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 4 * 1024
	defaultSendBuf      = 64
	defaultPublishBuf   = 1024
	maxConsecutiveDrops = 50
)

const (
	ChannelBook   = "book"
	ChannelTrades = "trades"
)

type subscription struct {
	client  *Client
	channel string
	on      bool
}

type publishMsg struct {
	channel string
	data    []byte
}

// Hub fans book and trade updates out to websocket clients. It implements
// engine.Reporter so it can be attached to the session directly.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	publish    chan publishMsg
	done       chan struct{}

	clients map[*Client]struct{}

	ladderRows int

	nClients     atomic.Int64
	publishDrops atomic.Uint64
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Channels this client receives. Owned by the hub goroutine once the
	// client is registered.
	subscribed map[string]bool

	// consecutive drops counter: if it grows too large we evict the client
	drops int
}

// NewHub creates a hub; book messages carry ladderRows rows per side.
func NewHub(ladderRows int) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		publish:    make(chan publishMsg, defaultPublishBuf),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		ladderRows: ladderRows,
	}
}

// Run runs the hub event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log.Info().Msg("ws hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setClients()

		case c := <-h.unregister:
			h.drop(c)

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; ok {
				sub.client.subscribed[sub.channel] = sub.on
			}

		case p := <-h.publish:
			for c := range h.clients {
				if !c.subscribed[p.channel] {
					continue
				}
				select {
				case c.send <- p.data:
					c.drops = 0
				default:
					h.publishDrops.Add(1)
					metrics.WSPublishDrops.Inc()
					c.drops++
					if c.drops > maxConsecutiveDrops {
						log.Warn().Int("drops", c.drops).Msg("evicting slow client")
						h.drop(c)
						_ = c.conn.Close()
					}
				}
			}

		case <-ctx.Done():
			log.Info().Msg("ws hub shutting down")
			for c := range h.clients {
				h.drop(c)
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setClients()
}

func (h *Hub) setClients() {
	h.nClients.Store(int64(len(h.clients)))
	metrics.WSClients.Set(float64(len(h.clients)))
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.nClients.Load())
}

// Drops returns the number of messages dropped for slow clients.
func (h *Hub) Drops() uint64 {
	return h.publishDrops.Load()
}

// ReportBook publishes the new book state. Non-blocking: the update is
// dropped if the publish buffer is full.
func (h *Hub) ReportBook(snapshot engine.Snapshot) {
	h.enqueue(ChannelBook, Envelope{Type: "book", Book: ptr(newBookView(snapshot, h.ladderRows))})
}

// ReportTrade publishes a print.
func (h *Hub) ReportTrade(trade common.Trade) {
	h.enqueue(ChannelTrades, Envelope{Type: "trade", Trade: ptr(newTradeView(trade))})
}

func (h *Hub) enqueue(channel string, msg Envelope) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("marshal ws message")
		return
	}
	select {
	case h.publish <- publishMsg{channel: channel, data: b}:
	default:
		// avoid blocking the engine; track drops
		h.publishDrops.Add(1)
		metrics.WSPublishDrops.Inc()
		log.Warn().Str("type", msg.Type).Msg("publish channel full, dropping update")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client subscribed to both
// channels. initial, if not nil, is the first message the client receives.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, defaultSendBuf),
		subscribed: map[string]bool{ChannelBook: true, ChannelTrades: true},
	}
	if initial != nil {
		client.send <- initial
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

type subscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// readPump reads subscription commands from the client.
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
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				log.Debug().Err(err).Msg("ws read error")
			}
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.Debug().Err(err).Msg("invalid ws message")
			continue
		}
		var on bool
		switch req.Op {
		case "subscribe":
			on = true
		case "unsubscribe":
		default:
			continue
		}
		for _, channel := range req.Channels {
			select {
			case c.hub.subscribe <- subscription{client: c, channel: channel, on: on}:
			case <-c.hub.done:
				return
			}
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
