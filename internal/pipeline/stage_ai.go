package pipeline

import (
	"context"

	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// AI 元数据写入共享 metadata map 时使用的键前缀。
// 提供方专有字段以 "ai.<provider>." 为前缀命名，保证异步补充提取
// 只做增量合并，不会覆盖其他阶段写入的字段。
const aiMetaPrefix = "ai."

// AIStage 委托可插拔的 AI 提供方提取分类、描述、标签等元数据。
// 提供方缺失或提取失败是软成功而非失败：AI 不可用绝不能阻断后续索引。
type AIStage struct {
	factory       AIFactory
	extractor     TextExtractor
	minConfidence float64
	maxChars      int
}

// NewAIStage 创建 AI 元数据提取阶段。extractor 可以为 nil。
func NewAIStage(factory AIFactory, extractor TextExtractor, minConfidence float64, maxChars int) *AIStage {
	if maxChars <= 0 {
		maxChars = 20000
	}
	return &AIStage{factory: factory, extractor: extractor, minConfidence: minConfidence, maxChars: maxChars}
}

func (s *AIStage) Name() string           { return StageAI }
func (s *AIStage) Order() int             { return 350 }
func (s *AIStage) Dependencies() []string { return []string{StageScan} }

// Run 提取文本内容并调用 AI 提供方，把结果合并进记录的元数据。
func (s *AIStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	provider := s.factory.Provider()
	if provider == nil {
		// 标记后异步补充提取由入口服务投递到后台队列
		ec.SetScratch(ScratchAIUnavailable, true)
		log.Infof("[AI] 提供方不可用, 跳过同步提取, FileID: %s", ec.Record.ID)
		return Succeeded(map[string]interface{}{"skipped": true, "reason": "provider unavailable"})
	}

	s.extractText(ctx, ec)

	extraction, err := provider.Extract(ctx, ExtractionRequest{
		FileName: ec.Record.FileName,
		MimeType: ec.Record.MimeType,
		Size:     ec.Record.Size,
		Content:  ec.Record.ExtractedText,
	})
	if err != nil {
		// 提取出错属于软失败：记录原因但不阻断管道
		ec.SetScratch(ScratchAIUnavailable, true)
		log.Warnf("[AI] 提取出错, FileID: %s, error: %v", ec.Record.ID, err)
		return Succeeded(map[string]interface{}{"unavailable": true, "error": err.Error()})
	}
	if !extraction.Success {
		log.Warnf("[AI] 提供方未给出结论, FileID: %s, 原因: %s", ec.Record.ID, extraction.Error)
		return Succeeded(map[string]interface{}{"unavailable": true, "error": extraction.Error})
	}

	MergeExtraction(ec.Record, provider.Name(), extraction, s.minConfidence)
	log.Infof("[AI] 元数据提取完成, FileID: %s, 分类: %s, 置信度: %.2f",
		ec.Record.ID, extraction.Category, extraction.Confidence)
	return Succeeded(map[string]interface{}{
		"provider":   provider.Name(),
		"category":   extraction.Category,
		"confidence": extraction.Confidence,
	})
}

// extractText 尽力通过文本提取服务填充 ExtractedText，失败只记录不上报。
func (s *AIStage) extractText(ctx context.Context, ec *ExecutionContext) {
	if s.extractor == nil || ec.Record.ExtractedText != "" {
		return
	}
	if err := ec.ResetStream(); err != nil {
		log.Warnf("[AI] 重置文件流失败: %v", err)
		return
	}
	text, err := s.extractor.ExtractText(ctx, ec.Stream, ec.Record.FileName)
	if err != nil {
		log.Warnf("[AI] 文本提取失败, FileID: %s, error: %v", ec.Record.ID, err)
	} else {
		if len(text) > s.maxChars {
			text = text[:s.maxChars]
		}
		ec.Record.ExtractedText = text
	}
	if err := ec.ResetStream(); err != nil {
		log.Warnf("[AI] 重置文件流失败: %v", err)
	}
}

// MergeExtraction 把一次 AI 提取结果合并到记录中。
// 分类/描述/标签只在置信度达标时采纳；全部字段以增量方式写入元数据，
// 提供方专有字段带 "ai.<provider>." 前缀，从不覆盖已有键。
// 同步管道与异步补充提取共用此合并逻辑。
func MergeExtraction(record *model.FileRecord, providerName string, extraction *Extraction, minConfidence float64) {
	fields := make(map[string]interface{})
	fields[aiMetaPrefix+"provider"] = providerName
	fields[aiMetaPrefix+"confidence"] = extraction.Confidence

	if extraction.Confidence >= minConfidence {
		if extraction.Category != "" {
			record.Categories = appendUnique(record.Categories, extraction.Category)
			fields[aiMetaPrefix+"category"] = extraction.Category
		}
		if extraction.Description != "" {
			fields[aiMetaPrefix+"description"] = extraction.Description
		}
		record.AddTags(extraction.Tags...)
	} else {
		fields[aiMetaPrefix+"low_confidence"] = true
	}

	for k, v := range extraction.Fields {
		fields[aiMetaPrefix+providerName+"."+k] = v
	}
	record.MergeMetadata(fields)
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
