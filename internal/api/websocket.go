// internal/api/websocket.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 事件类型
const (
	EventChapterGenerated = "chapter_generated"
	EventVoteOpened       = "vote_opened"
	EventVoteClosed       = "vote_closed"
	EventIdeaResolved     = "idea_resolved"
	EventSceneRevised     = "scene_revised"
)

// Event 推送给订阅者的会话事件
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan Event
	closeOnce sync.Once
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Hub 按会话分发事件的连接管理器
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *utils.Logger
}

// NewHub 创建连接管理器
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		logger:  utils.GetLogger(),
	}
}

// Broadcast 向订阅了该会话的所有连接推送事件
func (h *Hub) Broadcast(sessionID, eventType string, payload interface{}) {
	event := Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.sessionID != sessionID {
			continue
		}
		select {
		case client.send <- event:
		default:
			// 发送通道已满，放弃该条推送而不是阻塞广播
		}
	}
}

// HandleWS 升级连接并订阅指定会话的事件
func (h *Hub) HandleWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少会话ID"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("WebSocket 升级失败: %v", err)
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan Event, 16),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *Hub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

// readLoop 只消费控制帧与关闭事件，客户端不上行业务数据
func (h *Hub) readLoop(client *wsClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(1024)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
	}
	h.mu.Unlock()
	client.close()
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
