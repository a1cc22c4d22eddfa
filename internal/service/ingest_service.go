package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/google/uuid"

	"silo-go/internal/model"
	"silo-go/internal/pipeline"
	"silo-go/internal/repository"
	"silo-go/pkg/kafka"
	"silo-go/pkg/log"
	"silo-go/pkg/tasks"
)

// IngestService 接口定义了文件接收入口：构建执行上下文、
// 运行处理管道并持久化最终记录。
type IngestService interface {
	Upload(ctx context.Context, tenantID, fileName, mimeType string, size int64, stream io.ReadSeeker) (*model.FileRecord, *model.PipelineExecutionResult, error)
}

type ingestService struct {
	orchestrator *pipeline.Orchestrator
	fileRepo     repository.FileRecordRepository
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(orchestrator *pipeline.Orchestrator, fileRepo repository.FileRecordRepository) IngestService {
	return &ingestService{orchestrator: orchestrator, fileRepo: fileRepo}
}

// Upload 接收一个上传的文件流并带它走完整条处理管道。
// 管道的聚合结果原样返回给调用方；记录状态完全由各阶段驱动，
// 这里只负责创建与持久化。
func (s *ingestService) Upload(ctx context.Context, tenantID, fileName, mimeType string, size int64, stream io.ReadSeeker) (*model.FileRecord, *model.PipelineExecutionResult, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("缺少租户标识")
	}
	if fileName == "" {
		return nil, nil, fmt.Errorf("缺少文件名")
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileName))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
	}

	record := &model.FileRecord{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		FileName:     fileName,
		OriginalPath: fileName,
		Size:         size,
		MimeType:     mimeType,
		Status:       model.StatusPending,
		Metadata:     make(map[string]interface{}),
	}
	if err := s.fileRepo.Create(record); err != nil {
		return nil, nil, fmt.Errorf("创建文件记录失败: %w", err)
	}
	log.Infof("[Ingest] 文件已接收, FileID: %s, FileName: %s, TenantID: %s, 大小: %d字节",
		record.ID, fileName, tenantID, size)

	ec := pipeline.NewExecutionContext(record, stream, tenantID)
	result := s.orchestrator.Execute(ctx, ec)

	// 把各阶段写入的最终记录状态落库；落库失败不掩盖管道结果
	if err := s.fileRepo.Update(record); err != nil {
		log.Errorf("[Ingest] 持久化最终记录失败, FileID: %s, error: %v", record.ID, err)
	}

	s.maybeEnqueueEnrichment(ec, record)
	return record, result, nil
}

// maybeEnqueueEnrichment 在同步管道中 AI 不可用且文件已持久存储时，
// 投递异步补充提取任务。投递失败只记录，队列侧的重试机制负责兜底。
func (s *ingestService) maybeEnqueueEnrichment(ec *pipeline.ExecutionContext, record *model.FileRecord) {
	if _, unavailable := ec.Scratch(pipeline.ScratchAIUnavailable); !unavailable {
		return
	}
	if record.Status != model.StatusIndexed {
		return
	}

	task := tasks.AIEnrichmentTask{
		FileID:     record.ID,
		TenantID:   record.TenantID,
		ObjectName: fmt.Sprintf("files/%s/%s", record.ID, record.FileName),
		FileName:   record.FileName,
		MimeType:   record.MimeType,
		Size:       record.Size,
	}
	if err := kafka.ProduceEnrichmentTask(task); err != nil {
		log.Errorf("[Ingest] 投递补充提取任务失败, FileID: %s, error: %v", record.ID, err)
		return
	}
	log.Infof("[Ingest] 已投递补充提取任务, FileID: %s", record.ID)
}
