package pipeline

import (
	"context"
	"fmt"
	"time"

	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// StoreStage 把文件流上传到租户作用域内的对象存储位置。
// 上传成功后记录进入 Indexed 状态（指已持久存储，搜索索引由后续阶段负责）
// 并写入 ProcessedAt；上传失败时记录保持原状态。
type StoreStage struct {
	store ObjectStore
}

// NewStoreStage 创建主存储阶段。
func NewStoreStage(store ObjectStore) *StoreStage {
	return &StoreStage{store: store}
}

func (s *StoreStage) Name() string           { return StageStore }
func (s *StoreStage) Order() int             { return 200 }
func (s *StoreStage) Dependencies() []string { return []string{StageScan} }

// Run 上传文件字节到对象存储。
func (s *StoreStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	objectName := fmt.Sprintf("files/%s/%s", ec.Record.ID, ec.Record.FileName)
	path, err := s.store.Upload(ctx, ec.TenantID, objectName, ec.Stream, ec.Record.Size, ec.Record.MimeType)
	if err != nil {
		// 失败时不改动状态，记录保持上传前的状态
		return Failed(fmt.Sprintf("上传到对象存储失败: %v", err))
	}

	now := time.Now()
	ec.Record.StoragePath = path
	ec.Record.Status = model.StatusProcessed
	ec.Record.ProcessedAt = &now
	// 字节已持久化，记录进入 Indexed（durably stored）状态
	ec.Record.Status = model.StatusIndexed

	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	log.Infof("[Store] 文件已持久存储, FileID: %s, 路径: %s", ec.Record.ID, path)
	return Succeeded(map[string]interface{}{"storagePath": path})
}
