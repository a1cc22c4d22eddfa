package pipeline

import (
	"fmt"
	"io"

	"silo-go/internal/model"
)

// 跨阶段 scratch 数据的键。
const (
	// ScratchContentHash 由摘要阶段写入，供哈希索引与版本阶段复用。
	ScratchContentHash = "content_hash"
	// ScratchAIUnavailable 由 AI 阶段写入，表示需要异步补充提取。
	ScratchAIUnavailable = "ai_unavailable"
)

// ExecutionContext 是一次管道执行的共享上下文。
// 它独占持有文件流与 FileRecord；阶段严格顺序执行，
// 任何消费了流的阶段必须在返回前将流重置到起始位置。
type ExecutionContext struct {
	Record   *model.FileRecord
	Stream   io.ReadSeeker
	TenantID string

	results map[string]StageResult
	scratch map[string]interface{}
}

// NewExecutionContext 创建一个新的执行上下文。
func NewExecutionContext(record *model.FileRecord, stream io.ReadSeeker, tenantID string) *ExecutionContext {
	return &ExecutionContext{
		Record:   record,
		Stream:   stream,
		TenantID: tenantID,
		results:  make(map[string]StageResult),
		scratch:  make(map[string]interface{}),
	}
}

// RecordResult 以阶段名为键追加一条执行结果。结果映射只增不删。
func (ec *ExecutionContext) RecordResult(stageName string, result StageResult) {
	ec.results[stageName] = result
}

// Result 返回指定阶段的执行结果。
func (ec *ExecutionContext) Result(stageName string) (StageResult, bool) {
	r, ok := ec.results[stageName]
	return r, ok
}

// DependencySatisfied 判断指定阶段是否已作为成功条目出现在结果映射中。
func (ec *ExecutionContext) DependencySatisfied(stageName string) bool {
	r, ok := ec.results[stageName]
	return ok && r.Success
}

// SetScratch 写入一条跨阶段共享数据。
func (ec *ExecutionContext) SetScratch(key string, value interface{}) {
	ec.scratch[key] = value
}

// Scratch 读取一条跨阶段共享数据。
func (ec *ExecutionContext) Scratch(key string) (interface{}, bool) {
	v, ok := ec.scratch[key]
	return v, ok
}

// ScratchString 读取字符串类型的共享数据，类型不符时视为不存在。
func (ec *ExecutionContext) ScratchString(key string) (string, bool) {
	v, ok := ec.scratch[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ResetStream 将文件流重置到起始位置。
// 后续阶段需要完整读取文件内容，消费了流的阶段必须调用它。
func (ec *ExecutionContext) ResetStream() error {
	if ec.Stream == nil {
		return fmt.Errorf("执行上下文缺少文件流")
	}
	if _, err := ec.Stream.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("重置文件流失败: %w", err)
	}
	return nil
}
