package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// Client represents a WebSocket client connection
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	sensor string // Optional: only readings of this sensor
}

// Hub maintains active WebSocket connections and broadcasts live readings
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []models.Reading
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	metrics    *metrics.Metrics
	mu         sync.RWMutex
	count      int
}

// Message represents a WebSocket message structure
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []models.Reading, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run starts the WebSocket hub until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			log.Printf("🔌 WS: Client %s connected. Total clients: %d", client.id, len(h.clients))

			h.deliver(client, encode("connected", map[string]string{"status": "connected", "client_id": client.id}))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Printf("🔌 WS: Client %s disconnected. Total clients: %d", client.id, len(h.clients))
			}

		case readings := <-h.broadcast:
			all := encode("sensor_readings", readings)
			for client := range h.clients {
				if client.sensor == "" {
					h.deliver(client, all)
					continue
				}
				if own := filterSensor(readings, client.sensor); len(own) > 0 {
					h.deliver(client, encode("sensor_readings", own))
				}
			}

		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// Stop closes every client and ends Run
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) deliver(client *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case client.send <- data:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(len(h.clients))
}

func encode(kind string, data interface{}) []byte {
	payload, err := json.Marshal(Message{Type: kind, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		log.Printf("❌ WS: Error marshaling %s message: %v", kind, err)
		return nil
	}
	return payload
}

func filterSensor(readings []models.Reading, sensor string) []models.Reading {
	var out []models.Reading
	for _, r := range readings {
		if r.Sensor == sensor {
			out = append(out, r)
		}
	}
	return out
}

// BroadcastReadings pushes freshly stored readings to connected clients
func (h *Hub) BroadcastReadings(readings []models.Reading) {
	select {
	case h.broadcast <- readings:
	default:
		log.Println("⚠️  WS: Broadcast channel is full, dropping readings")
	}
}

// GetConnectedClientsCount returns the number of connected clients
func (h *Hub) GetConnectedClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// HandleWebSocket handles WebSocket connection requests. The optional
// sensor query parameter restricts the stream to one sensor.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WS: Upgrade error: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		sensor: r.URL.Query().Get("sensor"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains client messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  WS: Client %s error: %v", c.id, err)
			}
			break
		}
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
