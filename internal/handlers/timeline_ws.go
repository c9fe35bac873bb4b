package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/akmatori/article73/internal/notify"
	"github.com/gorilla/websocket"
)

// TimelineMessageType is the type of a message on the timeline stream
type TimelineMessageType string

const (
	TimelineMessageTypeAlert TimelineMessageType = "timeline_alert"
)

// TimelineMessage is sent to every subscribed client
type TimelineMessage struct {
	Type  TimelineMessageType  `json:"type"`
	Event notify.TimelineEvent `json:"event"`
}

const (
	clientSendBuffer = 16
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

type timelineClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *timelineClient) close() {
	c.once.Do(func() { close(c.send) })
}

// TimelineHub streams timeline alerts to connected websocket clients.
// Clients that fall behind are disconnected rather than slowing delivery.
type TimelineHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*timelineClient]struct{}
}

// NewTimelineHub creates a new timeline hub
func NewTimelineHub() *TimelineHub {
	return &TimelineHub{
		upgrader: websocket.Upgrader{
			// Origin is enforced by the CORS and JWT middleware in front of the hub
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*timelineClient]struct{}),
	}
}

// SetupRoutes configures WebSocket routes
func (h *TimelineHub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/timeline", h.HandleWebSocket)
}

// HandleWebSocket subscribes a client to the timeline stream
func (h *TimelineHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("TimelineHub: Failed to upgrade WebSocket: %v", err)
		return
	}

	client := &timelineClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	log.Printf("TimelineHub: Client connected from %s", r.RemoteAddr)

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client messages and detects disconnects
func (h *TimelineHub) readPump(c *timelineClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("TimelineHub: WebSocket error: %v", err)
			}
			return
		}
	}
}

func (h *TimelineHub) writePump(c *timelineClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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

func (h *TimelineHub) remove(c *timelineClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		log.Printf("TimelineHub: Client disconnected")
	}
	h.mu.Unlock()
}

// NotifyTimeline broadcasts ev to every connected client. It never blocks on
// a client; a client whose buffer is full is dropped.
func (h *TimelineHub) NotifyTimeline(ctx context.Context, ev notify.TimelineEvent) error {
	data, err := json.Marshal(TimelineMessage{Type: TimelineMessageTypeAlert, Event: ev})
	if err != nil {
		return err
	}

	var slow []*timelineClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("TimelineHub: Dropping slow client")
		h.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *TimelineHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
