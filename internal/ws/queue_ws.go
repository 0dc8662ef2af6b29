// Package ws рассылает события очередей подписанным браузерам через WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"qline/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Hub хранит подключения клиентов, сгруппированные по queueID.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	// mu защищает clients: Run пишет, Subscribers читает.
	mu   sync.RWMutex
	done chan struct{}
	log  *slog.Logger
}

type broadcastMessage struct {
	queueID string
	payload []byte
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, sendBuffer),
		done:       make(chan struct{}),
		log:        log.With("component", "ws"),
	}
}

// Run обрабатывает каналы хаба до отмены ctx, после чего закрывает все подключения.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for queueID, clients := range h.clients {
				for c := range clients {
					close(c.send)
				}
				delete(h.clients, queueID)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.queueID] == nil {
				h.clients[c.queueID] = make(map[*Client]bool)
			}
			h.clients[c.queueID][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients[m.queueID] {
				select {
				case c.send <- m.payload:
				default:
					// клиент не успевает читать
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove вызывается под h.mu.
func (h *Hub) remove(c *Client) {
	clients, ok := h.clients[c.queueID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.queueID)
	}
}

// Publish реализует events.Publisher. Не блокируется: при переполнении событие теряется.
func (h *Hub) Publish(_ context.Context, e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error("Ошибка сериализации события", "error", err, "type", e.Type)
		return
	}
	select {
	case h.broadcast <- broadcastMessage{queueID: e.QueueID, payload: payload}:
	default:
		h.log.Warn("Очередь рассылки переполнена, событие пропущено", "type", e.Type, "queue_id", e.QueueID)
	}
}

// Subscribers возвращает число подключений к очереди.
func (h *Hub) Subscribers(queueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[queueID])
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	queueID string
}

// readPump только отслеживает разрыв соединения: входящие сообщения не нужны.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler обновляет соединение до WebSocket и подписывает клиента на события очереди.
//
//	@Summary	Подписка на события очереди
//	@Tags		queues
//	@Param		id	path	string	true	"ID очереди"
//	@Success	101
//	@Router		/queues/{id}/ws [get]
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade уже ответил клиенту
			h.log.Warn("Ошибка обновления до WebSocket", "error", err)
			return
		}
		client := &Client{
			hub:     h,
			conn:    conn,
			send:    make(chan []byte, sendBuffer),
			queueID: c.Param("id"),
		}
		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go client.writePump()
		client.readPump()
	}
}
