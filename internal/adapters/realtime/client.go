package realtime

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var clientIDCounter atomic.Uint64

type Client struct {
	id          uint64
	hub         *Hub
	conn        *websocket.Conn
	collections map[string]bool

	// send is closed by the hub; every send goes through trySend
	mu     sync.Mutex
	send   chan Message
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, collections []string) *Client {
	set := make(map[string]bool, len(collections))
	for _, c := range collections {
		set[c] = true
	}
	return &Client{
		id:          clientIDCounter.Add(1),
		hub:         hub,
		conn:        conn,
		send:        make(chan Message, 256),
		collections: set,
	}
}

func (c *Client) wants(collection string) bool { return c.collections[collection] }

// trySend queues msg unless the client is closed or its buffer is full.
func (c *Client) trySend(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SnapshotFunc returns the current contents of one collection.
type SnapshotFunc func(ctx context.Context, collection string) (any, error)

// Upgrader is shared by every feed connection; origins are checked by the
// CORS layer in front of it.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request, queues one snapshot per collection and then
// streams change events for those collections.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, collections []string, snapshot SnapshotFunc) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("feed upgrade failed")
		return
	}
	c := newClient(hub, conn, collections)
	for _, coll := range collections {
		data, err := snapshot(r.Context(), coll)
		if err != nil {
			log.Warn().Err(err).Str("collection", coll).Msg("feed snapshot failed")
			continue
		}
		if !c.trySend(Message{Type: MessageTypeSnapshot, Collection: coll, Data: data}) {
			log.Warn().Str("collection", coll).Msg("feed snapshot dropped")
		}
	}
	hub.Register <- c
	c.start()
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Uint64("client", c.id).Msg("unexpected feed close")
			}
			return
		}
		var msg Message
		if json.Unmarshal(raw, &msg) == nil && msg.Type == MessageTypePing {
			c.trySend(Message{Type: MessageTypePong})
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
			b, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("encode feed message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
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
