// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/SceneForge/internal/utils"
)

// ProjectWebSocket 订阅项目的生成事件
func (h *Handler) ProjectWebSocket(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.Projects.GetProject(projectID); err != nil {
		h.Response.FromError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("websocket upgrade failed", map[string]interface{}{"project_id": projectID, "error": err})
		return
	}

	client := newWebSocketClient(conn, projectID)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	go h.handleWebSocketWrites(client)
	h.sendWelcomeMessage(client)
	h.handleWebSocketReads(client)
}

// handleWebSocketReads 读取直到连接关闭；客户端消息只用于保活
func (h *Handler) handleWebSocketReads(client *WebSocketClient) {
	defer h.Hub.Unregister(client)

	client.conn.SetReadDeadline(time.Now().Add(pingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(pingTimeout))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Debug("websocket read ended", map[string]interface{}{"project_id": client.projectID, "error": err})
			}
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(pingTimeout))
	}
}

// handleWebSocketWrites 把队列中的消息写出，并定期发送 ping
func (h *Handler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.Close()
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}

		case <-client.done:
			return
		}
	}
}

// sendWelcomeMessage 连接确认，附带当前正在生成的场景
func (h *Handler) sendWelcomeMessage(client *WebSocketClient) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":       "connected",
		"project_id": client.projectID,
		"data": map[string]interface{}{
			"generating": h.Projects.GeneratingScenes(client.projectID),
		},
		"timestamp": time.Now(),
	})
	if err != nil {
		return
	}
	client.enqueue(msg)
}
