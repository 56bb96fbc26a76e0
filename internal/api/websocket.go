package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"vkwatch/internal/eventbus"

	"github.com/gorilla/websocket"
)

// Hub fans task lifecycle events out to connected dashboard clients.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mutex      sync.Mutex
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]bool),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) clientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[api] WebSocket upgrade error:", err)
		return
	}

	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	go func() {
		defer func() {
			s.hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			wr, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			wr.Write(message)
			wr.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// wsMessage is what clients receive: the event type plus its payload.
type wsMessage struct {
	Type    string      `json:"type"`
	TaskID  string      `json:"task_id,omitempty"`
	Payload interface{} `json:"payload"`
}

// forwardEvents bridges the in-process event bus onto the WebSocket hub.
func (s *Server) forwardEvents() {
	ch := make(chan eventbus.Event, 128)
	s.bus.Subscribe(eventbus.TypeTaskProgress, ch)
	s.bus.Subscribe(eventbus.TypeTaskDone, ch)
	s.bus.Subscribe(eventbus.TypeKeywordMatch, ch)

	for evt := range ch {
		if evt.Type == eventbus.TypeTaskDone {
			// A finished run changes the aggregates behind the stats
			// endpoints; drop them rather than serve stale totals.
			apiCache.invalidatePrefix("/api/v1/stats")
		}
		msg := wsMessage{Type: evt.Type, TaskID: evt.TaskID, Payload: evt.Data}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case s.hub.broadcast <- data:
		default:
			// drop when the hub is saturated
		}
	}
}
