// Package feed streams detected change events to WebSocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"competitor-intel/internal/observability"
)

// Event is one change-feed message. Payload is the event record itself
// (NewProduct, PriceChange, ...) serialized as-is.
type Event struct {
	Kind         string      `json:"kind"`
	CompetitorID string      `json:"competitor_id"`
	Payload      interface{} `json:"payload"`
	EmittedAt    int64       `json:"emitted_at"` // unix ms
}

// Event kinds published by the change scanner.
const (
	KindNewProduct     = "new_product"
	KindNewPromotion   = "new_promotion"
	KindPriceIncrease  = "price_increase"
	KindPriceDecrease  = "price_decrease"
	KindBackInStock    = "back_in_stock"
	KindOutOfStock     = "out_of_stock"
	KindRecommendation = "recommendation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to all connected subscribers. Slow subscribers get
// disconnected rather than backing up the publisher.
type Hub struct {
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}
}

// NewHub creates a new Hub. Run must be started before publishing.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// Run owns the client set. It exits when ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			observability.DefaultMetrics.FeedSubscribers.Set(0)
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			observability.DefaultMetrics.FeedSubscribers.Set(float64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				observability.DefaultMetrics.FeedSubscribers.Set(float64(len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					observability.DefaultMetrics.FeedMessagesSent.Inc()
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			observability.DefaultMetrics.FeedSubscribers.Set(float64(len(h.clients)))
		}
	}
}

// Publish serializes the event and queues it for broadcast. Events are
// dropped when the broadcast queue is full; the feed is best-effort and the
// store remains the source of truth.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("feed: marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("feed: broadcast queue full, dropping %s event", e.Kind)
	}
}

// ServeHTTP upgrades the request and subscribes the connection to the feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed: upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// readPump discards inbound messages; the feed is one-way. It keeps the
// connection's read side alive for pong handling and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
