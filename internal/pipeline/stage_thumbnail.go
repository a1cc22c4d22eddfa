package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"silo-go/pkg/log"
)

// ThumbnailStage 为受支持的 MIME 类型生成缩略图派生物。
// 不支持的类型是空操作成功而非失败，生成结果属于尽力而为。
type ThumbnailStage struct {
	thumbnailer Thumbnailer
	store       ObjectStore
}

// NewThumbnailStage 创建缩略图生成阶段。
func NewThumbnailStage(thumbnailer Thumbnailer, store ObjectStore) *ThumbnailStage {
	return &ThumbnailStage{thumbnailer: thumbnailer, store: store}
}

func (s *ThumbnailStage) Name() string           { return StageThumbnail }
func (s *ThumbnailStage) Order() int             { return 300 }
func (s *ThumbnailStage) Dependencies() []string { return []string{StageStore} }

// Run 生成缩略图并上传到对象存储的 thumbs/ 前缀下。
func (s *ThumbnailStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	if !s.thumbnailer.Supports(ec.Record.MimeType) {
		log.Debugf("[Thumbnail] 类型 '%s' 不支持缩略图, 跳过, FileID: %s", ec.Record.MimeType, ec.Record.ID)
		return Succeeded(map[string]interface{}{"skipped": true, "reason": "unsupported type"})
	}

	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	data, contentType, err := s.thumbnailer.Generate(ec.Stream, ec.Record.MimeType)
	if err != nil {
		// 流必须恢复到起始位置，后续索引阶段还要使用记录
		_ = ec.ResetStream()
		return Failed(fmt.Sprintf("生成缩略图失败: %v", err))
	}
	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	objectName := fmt.Sprintf("thumbs/%s.png", ec.Record.ID)
	path, err := s.store.Upload(ctx, ec.TenantID, objectName, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return Failed(fmt.Sprintf("上传缩略图失败: %v", err))
	}

	ec.Record.ThumbnailPath = path
	log.Infof("[Thumbnail] 缩略图已生成, FileID: %s, 路径: %s, 大小: %d字节", ec.Record.ID, path, len(data))
	return Succeeded(map[string]interface{}{"thumbnailPath": path})
}
