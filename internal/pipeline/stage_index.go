package pipeline

import (
	"context"
	"fmt"

	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// IndexStage 把（可能已被 AI 丰富的）FileRecord 推送到搜索索引，
// 以文件 ID 为文档键。索引失败对调用方可见，但不回滚已持久化的存储。
type IndexStage struct {
	search SearchIndex
}

// NewIndexStage 创建搜索索引阶段。
func NewIndexStage(search SearchIndex) *IndexStage {
	return &IndexStage{search: search}
}

func (s *IndexStage) Name() string           { return StageIndex }
func (s *IndexStage) Order() int             { return 400 }
func (s *IndexStage) Dependencies() []string { return []string{StageStore} }

// Run 索引当前记录快照。
func (s *IndexStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	doc := model.NewEsFileDocument(ec.Record)
	if err := s.search.Index(ctx, doc); err != nil {
		return Failed(fmt.Sprintf("索引到搜索服务失败: %v", err))
	}

	log.Infof("[Index] 记录已索引, FileID: %s", ec.Record.ID)
	return Succeeded(map[string]interface{}{"indexed": true})
}
