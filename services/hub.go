package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	clientSendBuffer = 256

	// Inbound command ceiling per connection.
	inboundRate  = 10
	inboundBurst = 20
)

// Hub is the publish/subscribe fan-out: one logical channel per room code,
// every roster or session change emitted to all current subscribers.
// Delivery is at-most-once with no replay buffer.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	outbound   chan envelope
	router     CommandRouter
	log        zerolog.Logger
}

type envelope struct {
	roomCode string
	data     []byte
}

type Client struct {
	hub      *Hub
	id       string
	socket   *websocket.Conn
	send     chan []byte
	roomCode string
	playerID string
	userID   *string
	limiter  *rate.Limiter
}

// Message is the wire shape for both directions on the websocket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandRouter handles inbound commands and connection lifecycle for a
// bound connection.
type CommandRouter interface {
	Route(c *Client, msg Message)
	Connected(c *Client)
	Disconnected(c *Client)
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		outbound:   make(chan envelope, 256),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// AttachRouter must be called before Run; it breaks the construction cycle
// between the hub and the gateway.
func (h *Hub) AttachRouter(router CommandRouter) {
	h.router = router
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug().Str("client", client.id).Str("room", client.roomCode).Msg("client registered")
			if h.router != nil {
				// Off the fan-out loop: the registry call serializes
				// through the room actor and may block.
				go h.router.Connected(client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debug().Str("client", client.id).Str("room", client.roomCode).Msg("client unregistered")
				if h.router != nil {
					go h.router.Disconnected(client)
				}
			}

		case env := <-h.outbound:
			for client := range h.clients {
				if client.roomCode != env.roomCode {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					// Slow consumer: drop the connection rather than the
					// whole fan-out. The eviction is the disconnect for this
					// client; its later unregister finds it already gone.
					close(client.send)
					delete(h.clients, client)
					if h.router != nil {
						go h.router.Disconnected(client)
					}
				}
			}
		}
	}
}

// Publish implements Broadcaster.
func (h *Hub) Publish(roomCode, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Str("event", event).Err(err).Msg("marshaling event payload")
		return
	}
	data, err := json.Marshal(Message{Type: event, Payload: raw})
	if err != nil {
		h.log.Error().Str("event", event).Err(err).Msg("marshaling event")
		return
	}
	select {
	case h.outbound <- envelope{roomCode: roomCode, data: data}:
	default:
		// At-most-once delivery: under backpressure the event is dropped
		// and clients reconcile via the snapshot endpoint.
		h.log.Warn().Str("event", event).Str("room", roomCode).Msg("outbound queue full, event dropped")
	}
}

// RegisterClient binds a live connection to (room, player) identity and
// subscribes it to the room channel.
func (h *Hub) RegisterClient(conn *websocket.Conn, roomCode, playerID string, userID *string) *Client {
	client := &Client{
		hub:      h,
		id:       uuid.NewString(),
		socket:   conn,
		send:     make(chan []byte, clientSendBuffer),
		roomCode: roomCode,
		playerID: playerID,
		userID:   userID,
		limiter:  rate.NewLimiter(inboundRate, inboundBurst),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (c *Client) RoomCode() string { return c.roomCode }
func (c *Client) PlayerID() string { return c.playerID }
func (c *Client) UserID() *string  { return c.userID }

// Send queues a direct message for this connection only.
func (c *Client) Send(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(Message{Type: event, Payload: raw})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Str("client", c.id).Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.Send("error", map[string]any{"error": "slow down"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send("error", map[string]any{"error": "malformed message"})
			continue
		}
		if c.hub.router != nil {
			c.hub.router.Route(c, msg)
		}
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}
