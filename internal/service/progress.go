// Package service 包含了应用的业务逻辑层。
package service

import (
	"sync"

	"silo-go/internal/model"
)

// ProgressHub 在管道执行与 WebSocket 订阅方之间转发每个阶段的实时进度。
// 订阅按文件 ID 划分，发布方永不阻塞：订阅方缓冲写满时丢弃事件。
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan model.StageExecution]struct{}
}

// NewProgressHub 创建一个进度转发器。
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan model.StageExecution]struct{})}
}

// Subscribe 订阅指定文件的阶段进度，返回事件通道与取消函数。
func (h *ProgressHub) Subscribe(fileID string) (<-chan model.StageExecution, func()) {
	ch := make(chan model.StageExecution, 16)

	h.mu.Lock()
	if h.subs[fileID] == nil {
		h.subs[fileID] = make(map[chan model.StageExecution]struct{})
	}
	h.subs[fileID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[fileID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, fileID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish 向指定文件的全部订阅方广播一条阶段执行结果。
func (h *ProgressHub) Publish(fileID string, exec model.StageExecution) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[fileID] {
		select {
		case ch <- exec:
		default:
			// 订阅方消费过慢时丢弃，进度推送属于尽力而为
		}
	}
}
