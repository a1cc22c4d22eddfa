package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"silo-go/internal/service"
	"silo-go/pkg/log"
)

// EventsHandler 通过 WebSocket 向客户端推送管道阶段的实时进度。
type EventsHandler struct {
	hub      *service.ProgressHub
	upgrader websocket.Upgrader
}

// NewEventsHandler 创建一个新的 EventsHandler 实例。
func NewEventsHandler(hub *service.ProgressHub) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域校验交给网关层
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream 升级连接为 WebSocket，并把指定文件的阶段进度逐条写给客户端。
// 客户端断开或写失败即结束订阅。
func (h *EventsHandler) Stream(c *gin.Context) {
	fileID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Stream: WebSocket 升级失败, FileID: %s, error: %v", fileID, err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(fileID)
	defer cancel()

	// 读 goroutine 只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case exec := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(exec); err != nil {
				log.Warnf("Stream: 写 WebSocket 失败, FileID: %s, error: %v", fileID, err)
				return
			}
		case <-done:
			return
		}
	}
}
