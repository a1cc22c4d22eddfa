package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"

	"silo-go/internal/config"
	"silo-go/internal/model"
	"silo-go/internal/pipeline"
	"silo-go/internal/repository"
	"silo-go/pkg/log"
	"silo-go/pkg/tasks"
)

// EnrichService 消费异步 AI 补充提取任务：对同步管道中因 AI 不可用
// 而未完成元数据提取的文件，重新提取并合并元数据。
// Process 实现 kafka.TaskProcessor 契约，必须幂等。
type EnrichService interface {
	Process(ctx context.Context, task tasks.AIEnrichmentTask) error
}

type enrichService struct {
	fileRepo  repository.FileRecordRepository
	store     pipeline.ObjectStore
	extractor pipeline.TextExtractor
	factory   pipeline.AIFactory
	search    pipeline.SearchIndex
	aiCfg     config.AIConfig
	maxChars  int
}

// NewEnrichService 创建一个新的 EnrichService 实例。
func NewEnrichService(
	fileRepo repository.FileRecordRepository,
	store pipeline.ObjectStore,
	extractor pipeline.TextExtractor,
	factory pipeline.AIFactory,
	search pipeline.SearchIndex,
	aiCfg config.AIConfig,
	tikaCfg config.TikaConfig,
) EnrichService {
	maxChars := tikaCfg.MaxChars
	if maxChars <= 0 {
		maxChars = 20000
	}
	return &enrichService{
		fileRepo:  fileRepo,
		store:     store,
		extractor: extractor,
		factory:   factory,
		search:    search,
		aiCfg:     aiCfg,
		maxChars:  maxChars,
	}
}

// Process 处理一条补充提取任务。返回错误表示可重试的失败，
// 由消费侧按退避策略重投；返回 nil 表示任务终结（成功或确定无法完成）。
func (s *enrichService) Process(ctx context.Context, task tasks.AIEnrichmentTask) error {
	provider := s.factory.Provider()
	if provider == nil {
		// AI 仍不可用，交给队列稍后重试
		return fmt.Errorf("AI 提供方不可用")
	}

	record, err := s.fileRepo.FindByID(task.TenantID, task.FileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 文件已被删除，任务终结
		log.Warnf("[Enrich] 文件记录不存在, 放弃任务, FileID: %s", task.FileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询文件记录失败: %w", err)
	}

	content := record.ExtractedText
	if content == "" {
		content, err = s.extractContent(ctx, task)
		if err != nil {
			return err
		}
		record.ExtractedText = content
	}

	extraction, err := provider.Extract(ctx, pipeline.ExtractionRequest{
		FileName: record.FileName,
		MimeType: record.MimeType,
		Size:     record.Size,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("AI 提取失败: %w", err)
	}
	if !extraction.Success {
		// 提供方明确给不出结论，重试也不会有结果
		log.Warnf("[Enrich] AI 提取无结论, 放弃任务, FileID: %s, 原因: %s", task.FileID, extraction.Error)
		return nil
	}

	pipeline.MergeExtraction(record, provider.Name(), extraction, s.aiCfg.MinConfidence)
	if err := s.fileRepo.Update(record); err != nil {
		return fmt.Errorf("保存补充元数据失败: %w", err)
	}

	// 搜索索引更新失败不触发任务重试，下一次记录变更时会整体覆盖
	if err := s.search.Update(ctx, model.NewEsFileDocument(record)); err != nil {
		log.Errorf("[Enrich] 更新搜索索引失败, FileID: %s, error: %v", task.FileID, err)
	}

	log.Infof("[Enrich] 补充提取完成, FileID: %s, 提供方: %s", task.FileID, provider.Name())
	return nil
}

// extractContent 从对象存储取回文件并提取文本内容，超长内容截断。
func (s *enrichService) extractContent(ctx context.Context, task tasks.AIEnrichmentTask) (string, error) {
	object, err := s.store.Download(ctx, task.TenantID, task.ObjectName)
	if err != nil {
		return "", fmt.Errorf("下载对象失败: %w", err)
	}
	defer object.Close()

	text, err := s.extractor.ExtractText(ctx, io.LimitReader(object, 64<<20), task.FileName)
	if err != nil {
		return "", fmt.Errorf("提取文本失败: %w", err)
	}
	if len(text) > s.maxChars {
		text = text[:s.maxChars]
	}
	return text, nil
}
