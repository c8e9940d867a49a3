// Package hub is the ClientHub bridge: it maps Controller events onto a
// stable wire envelope and fans them out to websocket subscribers with
// drop-slow-subscriber backpressure (spec.md §4.8). Grounded on the
// convinceme-backend DebateSession client registry (map of connections
// guarded by a mutex, synchronous broadcast) and on
// chriscow-livekit-agents-go's use of gorilla/websocket as a direct
// dependency; generalized with a bounded per-subscriber pump instead of
// the reference's blocking WriteJSON loop, since this bridge's
// drop-slow-subscriber requirement forbids blocking the broadcaster on one
// slow client.
package hub

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Envelope is the stable outbound wire shape every event is mapped into
// (spec.md §4.8). Sequence is set only on new_message envelopes, where it
// equals the emitting turn's turnID and so increases per room; every other
// envelope type carries no sequence.
type Envelope struct {
	Type     string      `json:"type"`
	RoomID   string      `json:"room_id,omitempty"`
	Sequence int         `json:"sequence,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// DefaultPublishTimeout matches spec.md §5's publishTimeout default.
const DefaultPublishTimeout = 100 * time.Millisecond

// Client is one websocket connection's outbound pump plus its room
// subscriptions. A Client is owned by exactly one Hub.
type Client struct {
	id   string
	conn *websocket.Conn

	mu    sync.RWMutex
	rooms map[string]bool

	outbound chan Envelope
	done     chan struct{}
	closeOne sync.Once
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		rooms:    make(map[string]bool),
		outbound: make(chan Envelope, 256),
		done:     make(chan struct{}),
	}
}

// ID returns the connection-scoped client id (spec.md §6's connection_id).
func (c *Client) ID() string { return c.id }

func (c *Client) subscribedTo(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// Join subscribes this client to roomID's events.
func (c *Client) Join(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()
}

// Leave unsubscribes this client from roomID's events.
func (c *Client) Leave(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// send enqueues env for delivery, dropping it (and reporting false) if the
// client's outbound buffer is still full after publishTimeout — the
// drop-slow-subscriber policy from spec.md §4.8/§5.
func (c *Client) send(env Envelope, publishTimeout time.Duration) bool {
	select {
	case c.outbound <- env:
		return true
	case <-c.done:
		return false
	case <-time.After(publishTimeout):
		return false
	}
}

// pump is the client's single writer goroutine; gorilla/websocket
// connections are not safe for concurrent writes, so all writes to conn
// happen here and nowhere else.
func (c *Client) pump() {
	for {
		select {
		case env, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				log.Printf("hub: client %s write error: %v", c.id, err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close shuts down the client's pump and underlying connection.
func (c *Client) Close() {
	c.closeOne.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub is the process-wide websocket registry: clients in, room-scoped
// broadcasts out. One Hub serves every room; per-room fan-out is expressed
// purely through each Client's subscription set.
type Hub struct {
	publishTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
}

// New builds a Hub with the given publish timeout (use DefaultPublishTimeout
// when unset).
func New(publishTimeout time.Duration) *Hub {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Hub{publishTimeout: publishTimeout, clients: make(map[string]*Client)}
}

// Register adopts conn as a new Client, starts its write pump, and sends
// the spec.md §6 connection{} handshake.
func (h *Hub) Register(conn *websocket.Conn, serverRestartID string) *Client {
	id := uuid.New().String()
	c := newClient(id, conn)

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	go c.pump()
	c.send(Envelope{Type: "connection", Payload: map[string]string{
		"connection_id":     id,
		"server_restart_id": serverRestartID,
	}}, h.publishTimeout)

	return c
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.Close()
}

// Publish fans env out to every client subscribed to roomID. Best-effort:
// a client whose buffer is still full after publishTimeout is dropped and
// must re-subscribe (spec.md §4.8).
func (h *Hub) Publish(roomID string, env Envelope) {
	env.RoomID = roomID

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.subscribedTo(roomID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.send(env, h.publishTimeout) {
			c.Leave(roomID)
		}
	}
}

// Broadcast sends env to every connected client regardless of room
// subscription, used for rooms_list/room_created/room_deleted.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(env, h.publishTimeout)
	}
}
