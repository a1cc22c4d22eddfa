// Package pipeline 定义了文件处理的核心流程：
// 阶段契约、共享执行上下文与按序编排各阶段的 Orchestrator。
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"silo-go/pkg/log"
)

// 内置阶段名，同时作为依赖声明的键。
const (
	StageHashing   = "hashing"
	StageHashIndex = "hash_index"
	StageScan      = "malware_scan"
	StageStore     = "storage"
	StageThumbnail = "thumbnail"
	StageAI        = "ai_extraction"
	StageIndex     = "search_index"
	StageVersion   = "versioning"
)

// StageResult 是单个阶段的执行结论：成功（可附带元数据）或失败（附带原因）。
type StageResult struct {
	Success  bool
	Message  string
	Metadata map[string]interface{}
}

// Succeeded 构造一个成功结果。
func Succeeded(metadata map[string]interface{}) StageResult {
	return StageResult{Success: true, Metadata: metadata}
}

// Failed 构造一个失败结果。失败属于业务结论而非程序异常，
// 由 Orchestrator 依据失败策略决定是否继续执行后续阶段。
func Failed(message string) StageResult {
	return StageResult{Success: false, Message: message}
}

// FailedWith 构造一个附带元数据的失败结果。
func FailedWith(message string, metadata map[string]interface{}) StageResult {
	return StageResult{Success: false, Message: message, Metadata: metadata}
}

// Skipped 构造禁用阶段的占位结果：成功且标记 skipped，
// 以满足依赖它的后续阶段，禁用一个阶段不应导致整条管道搁浅。
func Skipped(reason string) StageResult {
	return StageResult{Success: true, Metadata: map[string]interface{}{"skipped": true, "reason": reason}}
}

// Stage 是一个命名的、有序的文件处理工作单元。
// 实现只关心自身的业务逻辑；依赖检查、禁用跳过、异常兜底与超时
// 统一由 Orchestrator 和 runGuarded 包装完成。
type Stage interface {
	// Name 返回阶段的唯一名称，作为依赖声明的键。
	Name() string
	// Order 返回排序序号，小者先行，相同序号按注册顺序执行。
	Order() int
	// Dependencies 返回必须先以成功条目出现在结果映射中的阶段名集合。
	Dependencies() []string
	// Run 执行阶段工作，读写共享的 FileRecord 与文件流。
	Run(ctx context.Context, ec *ExecutionContext) StageResult
}

// runGuarded 包装一次 Run 调用，将任何 panic 转换为 Failed 结果。
// 这保证单个阶段的故障永远不会以异常形式传导给 Orchestrator。
func runGuarded(ctx context.Context, stage Stage, ec *ExecutionContext) (result StageResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("阶段发生未预期异常",
				"stage", stage.Name(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = Failed(fmt.Sprintf("阶段 %s 发生未预期异常: %v", stage.Name(), r))
		}
	}()
	return stage.Run(ctx, ec)
}

// canRun 判断阶段的全部依赖是否均已成功。返回第一个未满足的依赖名。
func canRun(stage Stage, ec *ExecutionContext) (bool, string) {
	for _, dep := range stage.Dependencies() {
		if !ec.DependencySatisfied(dep) {
			return false, dep
		}
	}
	return true, ""
}
