package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// ProctorEvent is broadcast to proctor/admin dashboards when attendance or
// session state changes.
type ProctorEvent struct {
	Type           string    `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	TestIdentifier string    `json:"test_identifier,omitempty"`
	CourseID       string    `json:"course_id,omitempty"`
	Level          int       `json:"level,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Locked         bool      `json:"locked"`
	Blocked        bool      `json:"blocked"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

type proctorMessage struct {
	courseID string
	payload  []byte
}

// ProctorHub fans events out to dashboard clients, optionally filtered to
// the courses a client asked for.
type ProctorHub struct {
	register   chan *proctorClient
	unregister chan *proctorClient
	broadcast  chan proctorMessage
	clients    map[*proctorClient]struct{}
}

func NewProctorHub() *ProctorHub {
	return &ProctorHub{
		register:   make(chan *proctorClient),
		unregister: make(chan *proctorClient),
		broadcast:  make(chan proctorMessage, sendBufferSize),
		clients:    make(map[*proctorClient]struct{}),
	}
}

func (h *ProctorHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.allowAll {
					if msg.courseID == "" {
						continue
					}
					if _, ok := client.courses[msg.courseID]; !ok {
						continue
					}
				}
				select {
				case client.send <- msg.payload:
				default:
					delete(h.clients, client)
					close(client.send)
					client.conn.Close()
				}
			}
		}
	}
}

// Broadcast pushes an event to all relevant dashboard clients. Safe on a
// nil hub.
func (h *ProctorHub) Broadcast(event ProctorEvent) {
	if h == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: failed to marshal proctor event: %v", err)
		return
	}
	h.broadcast <- proctorMessage{courseID: event.CourseID, payload: data}
}

type proctorClient struct {
	hub      *ProctorHub
	conn     *websocket.Conn
	send     chan []byte
	courses  map[string]struct{}
	allowAll bool
}

func newProctorClient(hub *ProctorHub, conn *websocket.Conn, courses map[string]struct{}, allowAll bool) *proctorClient {
	return &proctorClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		courses:  courses,
		allowAll: allowAll,
	}
}

func (c *proctorClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *proctorClient) writePump() {
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
