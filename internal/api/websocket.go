// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/SceneForge/internal/services"
	"github.com/Corphon/SceneForge/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pingTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	clientQueueLen = 64
)

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个订阅项目事件的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	projectID string
	send      chan []byte
	done      chan struct{}
	closed    int32
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, projectID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		projectID: projectID,
		send:      make(chan []byte, clientQueueLen),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// enqueue never blocks; a full queue drops the message.
func (client *WebSocketClient) enqueue(msg []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

type projectMessage struct {
	projectID string
	payload   []byte
}

// Hub 按项目分组的 WebSocket 连接，并作为 services.EventPublisher 推送生成事件。
// Events without a project id go to every client.
type Hub struct {
	connections map[string]map[*WebSocketClient]struct{}
	closed      bool
	mutex       sync.RWMutex

	broadcast chan projectMessage
	stop      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once

	pingTimeout time.Duration
	dropped     atomic.Int64
}

var _ services.EventPublisher = (*Hub)(nil)

// NewHub 创建并启动 hub
func NewHub() *Hub {
	hub := &Hub{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		broadcast:   make(chan projectMessage, 256),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		pingTimeout: pingTimeout,
	}
	go hub.run()
	return hub
}

// Publish implements services.EventPublisher. It never blocks the caller.
func (hub *Hub) Publish(event services.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		utils.GetLogger().Error("marshal event failed", map[string]interface{}{"type": event.Type, "error": err})
		return
	}

	select {
	case <-hub.stop:
		return
	default:
	}

	select {
	case hub.broadcast <- projectMessage{projectID: event.ProjectID, payload: payload}:
	default:
		hub.dropped.Add(1)
		utils.GetLogger().Warn("event queue full, dropping event", map[string]interface{}{
			"type":       event.Type,
			"project_id": event.ProjectID,
		})
	}
}

// Close 关闭所有连接并停止主循环
func (hub *Hub) Close() {
	hub.stopOnce.Do(func() {
		close(hub.stop)
	})
	<-hub.stopped
}

func (hub *Hub) run() {
	defer close(hub.stopped)

	cleanupTicker := time.NewTicker(pingInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case msg := <-hub.broadcast:
			hub.deliver(msg)

		case <-cleanupTicker.C:
			hub.cleanupExpiredConnections()

		case <-hub.stop:
			hub.shutdown()
			return
		}
	}
}

// Register 注册客户端；hub 已关闭时返回 false。
// Registration is synchronous so a client sees every event published after
// Register returns.
func (hub *Hub) Register(client *WebSocketClient) bool {
	if client == nil {
		return false
	}

	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.closed {
		return false
	}
	if hub.connections[client.projectID] == nil {
		hub.connections[client.projectID] = make(map[*WebSocketClient]struct{})
	}
	hub.connections[client.projectID][client] = struct{}{}

	utils.GetLogger().Info("websocket client connected", map[string]interface{}{"project_id": client.projectID})
	return true
}

// Unregister 注销并关闭客户端
func (hub *Hub) Unregister(client *WebSocketClient) {
	if client == nil {
		return
	}

	hub.mutex.Lock()
	if connections, ok := hub.connections[client.projectID]; ok {
		delete(connections, client)
		if len(connections) == 0 {
			delete(hub.connections, client.projectID)
		}
	}
	hub.mutex.Unlock()

	client.Close()
	utils.GetLogger().Info("websocket client disconnected", map[string]interface{}{"project_id": client.projectID})
}

func (hub *Hub) deliver(msg projectMessage) {
	hub.mutex.RLock()
	targets := make([]*WebSocketClient, 0)
	for projectID, connections := range hub.connections {
		if msg.projectID != "" && projectID != msg.projectID {
			continue
		}
		for client := range connections {
			targets = append(targets, client)
		}
	}
	hub.mutex.RUnlock()

	for _, client := range targets {
		if !client.enqueue(msg.payload) && !client.IsClosed() {
			// 慢客户端直接断开，由读协程负责注销
			hub.dropped.Add(1)
			client.Close()
		}
	}
}

// cleanupExpiredConnections 清理过期和死连接
func (hub *Hub) cleanupExpiredConnections() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for projectID, connections := range hub.connections {
		for client := range connections {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				delete(connections, client)
				client.Close()
			}
		}
		if len(connections) == 0 {
			delete(hub.connections, projectID)
		}
	}
}

func (hub *Hub) shutdown() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	hub.closed = true
	for _, connections := range hub.connections {
		for client := range connections {
			client.Close()
		}
	}
	hub.connections = make(map[string]map[*WebSocketClient]struct{})
}

// ClientCount 返回某项目（空字符串表示全部）的连接数
func (hub *Hub) ClientCount(projectID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	if projectID != "" {
		return len(hub.connections[projectID])
	}
	total := 0
	for _, connections := range hub.connections {
		total += len(connections)
	}
	return total
}

// GetStatus 获取 hub 状态
func (hub *Hub) GetStatus() map[string]interface{} {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	projects := make(map[string]int, len(hub.connections))
	total := 0
	for projectID, connections := range hub.connections {
		projects[projectID] = len(connections)
		total += len(connections)
	}

	return map[string]interface{}{
		"total_projects":       len(hub.connections),
		"total_connections":    total,
		"projects":             projects,
		"dropped_messages":     hub.dropped.Load(),
		"ping_timeout_seconds": int(hub.pingTimeout.Seconds()),
	}
}
