package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/ports"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

// IntentFunc handles one inbound frame from connection connID and returns the reply frame, if any.
type IntentFunc func(ctx context.Context, connID string, frame []byte) []byte

type client struct {
	id     string
	roomID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks websocket subscribers per room and fans broadcasts out to them.
type Hub struct {
	logger   runtime.Logger
	upgrader websocket.Upgrader
	onIntent IntentFunc

	mu    sync.RWMutex
	rooms map[string]map[string]*client
}

// NewHub returns a hub. onIntent may be nil for a publish-only hub.
func NewHub(logger runtime.Logger, onIntent IntentFunc) *Hub {
	return &Hub{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		onIntent: onIntent,
		rooms:    make(map[string]map[string]*client),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish queues msg for every subscriber of its room. Slow subscribers are skipped, not waited on.
// A room:destroyed message is the last frame a subscriber gets; the room is closed right after it.
func (h *Hub) Publish(ctx context.Context, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}

	h.mu.RLock()
	dropped := 0
	for _, c := range h.rooms[msg.RoomID] {
		select {
		case c.send <- frame:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if msg.Type == string(app.EventRoomDestroyed) {
		h.CloseRoom(msg.RoomID)
	}
	if dropped > 0 {
		return fmt.Errorf("%d subscribers of room %s are not keeping up", dropped, msg.RoomID)
	}
	return nil
}

// Subscribers counts live connections in roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// CloseRoom disconnects every subscriber of roomID once their queued frames are written.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	clients := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()
	for _, c := range clients {
		close(c.send)
	}
}

// Serve upgrades the request and subscribes the connection to roomID until it closes.
// It returns the connection id once the reader and writer are running.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID string) (string, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", err
	}
	c := &client{id: uuid.NewString(), roomID: roomID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	hello, _ := json.Marshal(map[string]string{"type": "connection:ready", "connId": c.id, "roomId": roomID})
	c.send <- hello

	go h.writePump(c)
	go h.readPump(c)
	h.logger.Debug("WS: %s subscribed to room %s", c.id, roomID)
	return c.id, nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[string]*client)
	}
	h.rooms[c.roomID][c.id] = c
}

// unregister removes c if it is still subscribed and closes its send queue.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.rooms[c.roomID]
	if subs[c.id] != c {
		return
	}
	delete(subs, c.id)
	if len(subs) == 0 {
		delete(h.rooms, c.roomID)
	}
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Debug("WS: %s left room %s", c.id, c.roomID)
	}()
	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if h.onIntent == nil {
			continue
		}
		reply := h.onIntent(context.Background(), c.id, frame)
		if reply == nil {
			continue
		}
		h.mu.RLock()
		live := h.rooms[c.roomID][c.id] == c
		if live {
			select {
			case c.send <- reply:
			default:
			}
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

var _ ports.Transport = (*Hub)(nil)
