package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"silo-go/internal/config"
	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// DefaultStageTimeout 是未配置时单个阶段的最长执行时间。
const DefaultStageTimeout = 60 * time.Second

// registeredStage 是阶段在编排器中的注册条目，seq 记录注册顺序用于稳定排序。
type registeredStage struct {
	stage   Stage
	enabled bool
	seq     int
}

// Orchestrator 按序号顺序调度启用的阶段，执行依赖检查、
// 超时控制与失败策略，并聚合每个阶段的执行结果。
// 阶段的启用状态可在运行时独立切换。
type Orchestrator struct {
	mu     sync.RWMutex
	stages []*registeredStage

	cfg         config.PipelineConfig
	timeout     time.Duration
	critical    map[string]struct{}
	nonCritical map[string]struct{}

	observer func(fileID string, exec model.StageExecution)
}

// SetObserver 注册一个回调，每个阶段出结论后立即收到其执行结果，
// 用于向订阅方推送实时进度。回调在管道 goroutine 内同步执行，必须轻量。
func (o *Orchestrator) SetObserver(fn func(fileID string, exec model.StageExecution)) {
	o.mu.Lock()
	o.observer = fn
	o.mu.Unlock()
}

func (o *Orchestrator) notify(fileID string, exec model.StageExecution) {
	o.mu.RLock()
	fn := o.observer
	o.mu.RUnlock()
	if fn != nil {
		fn(fileID, exec)
	}
}

// NewOrchestrator 创建编排器并注册给定阶段。
// cfg.DisabledStages 中列出的阶段初始为禁用状态。
func NewOrchestrator(cfg config.PipelineConfig, stages ...Stage) *Orchestrator {
	timeout := DefaultStageTimeout
	if cfg.StageTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.StageTimeoutSeconds) * time.Second
	}
	// MaxConcurrentStages 预留给未来不依赖文件流的阶段；当前执行模型严格串行。
	if cfg.MaxConcurrentStages < 1 {
		cfg.MaxConcurrentStages = 1
	}

	o := &Orchestrator{
		cfg:         cfg,
		timeout:     timeout,
		critical:    toSet(cfg.CriticalStages),
		nonCritical: toSet(cfg.NonCriticalStages),
	}
	disabled := toSet(cfg.DisabledStages)
	for _, s := range stages {
		_, off := disabled[s.Name()]
		o.stages = append(o.stages, &registeredStage{stage: s, enabled: !off, seq: len(o.stages)})
	}
	return o
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Register 追加注册一个阶段（默认启用）。
func (o *Orchestrator) Register(s Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, &registeredStage{stage: s, enabled: true, seq: len(o.stages)})
}

// EnableStage 启用一个已注册的阶段。
func (o *Orchestrator) EnableStage(name string) error {
	return o.setEnabled(name, true)
}

// DisableStage 禁用一个已注册的阶段。被禁用的阶段在执行时被直接跳过，
// 其占位结果仍满足依赖它的后续阶段。
func (o *Orchestrator) DisableStage(name string) error {
	return o.setEnabled(name, false)
}

func (o *Orchestrator) setEnabled(name string, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, rs := range o.stages {
		if rs.stage.Name() == name {
			rs.enabled = enabled
			log.Infof("[Orchestrator] 阶段 '%s' 启用状态已切换为 %v", name, enabled)
			return nil
		}
	}
	return fmt.Errorf("未注册的阶段: %s", name)
}

// EnabledStages 返回当前启用的阶段名，按执行顺序排列。
func (o *Orchestrator) EnabledStages() []string {
	var names []string
	for _, rs := range o.snapshot() {
		if rs.enabled {
			names = append(names, rs.stage.Name())
		}
	}
	return names
}

// StageNames 返回全部已注册阶段名，按执行顺序排列。
func (o *Orchestrator) StageNames() []string {
	var names []string
	for _, rs := range o.snapshot() {
		names = append(names, rs.stage.Name())
	}
	return names
}

// snapshot 在读锁下复制注册表，并按 (Order, 注册顺序) 稳定排序。
func (o *Orchestrator) snapshot() []registeredStage {
	o.mu.RLock()
	ordered := make([]registeredStage, 0, len(o.stages))
	for _, rs := range o.stages {
		ordered = append(ordered, *rs)
	}
	o.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].stage.Order() != ordered[j].stage.Order() {
			return ordered[i].stage.Order() < ordered[j].stage.Order()
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

// Execute 对一个执行上下文顺序运行所有阶段，返回聚合结果。
// 单个阶段的失败不会以异常形式传播；Orchestrator 只依据失败策略
// 决定中止或继续，并把所有阶段结论记录在聚合结果中。
func (o *Orchestrator) Execute(ctx context.Context, ec *ExecutionContext) *model.PipelineExecutionResult {
	ordered := o.snapshot()
	result := &model.PipelineExecutionResult{FileID: ec.Record.ID, Success: true}
	aborted := false

	log.Infof("[Orchestrator] 开始执行管道, FileID: %s, TenantID: %s, 阶段数: %d",
		ec.Record.ID, ec.TenantID, len(ordered))

	for _, rs := range ordered {
		name := rs.stage.Name()

		// 禁用的阶段直接跳过，不做依赖检查，也不触碰记录和文件流。
		// 占位成功结果写入结果映射，保证依赖它的阶段不会被搁浅。
		if !rs.enabled {
			res := Skipped("阶段已禁用")
			ec.RecordResult(name, res)
			exec := toStageExecution(name, res, 0)
			result.Stages = append(result.Stages, exec)
			o.notify(ec.Record.ID, exec)
			log.Debugf("[Orchestrator] 阶段 '%s' 已禁用, 跳过", name)
			continue
		}

		// 管道已中止：剩余阶段标记为因中止而跳过，不再执行。
		if aborted {
			res := FailedWith("跳过: 管道已中止", map[string]interface{}{"skipped": true, "reason": "aborted"})
			ec.RecordResult(name, res)
			exec := toStageExecution(name, res, 0)
			result.Stages = append(result.Stages, exec)
			o.notify(ec.Record.ID, exec)
			continue
		}

		// 依赖检查：全部依赖必须以成功条目出现在结果映射中。
		if ok, missing := canRun(rs.stage, ec); !ok {
			res := Failed(fmt.Sprintf("依赖未满足: %s", missing))
			ec.RecordResult(name, res)
			exec := toStageExecution(name, res, 0)
			result.Stages = append(result.Stages, exec)
			o.notify(ec.Record.ID, exec)
			log.Warnf("[Orchestrator] 阶段 '%s' 依赖 '%s' 未满足", name, missing)
			o.applyFailurePolicy(name, res, result, &aborted)
			continue
		}

		start := time.Now()
		res := o.runWithTimeout(ctx, rs.stage, ec)
		duration := time.Since(start)

		ec.RecordResult(name, res)
		exec := toStageExecution(name, res, duration)
		result.Stages = append(result.Stages, exec)
		o.notify(ec.Record.ID, exec)

		if res.Success {
			log.Infof("[Orchestrator] 阶段 '%s' 执行成功, 耗时: %s", name, duration)
			continue
		}
		log.Warnf("[Orchestrator] 阶段 '%s' 执行失败: %s, 耗时: %s", name, res.Message, duration)
		o.applyFailurePolicy(name, res, result, &aborted)
	}

	if aborted && result.Error == "" {
		result.Error = "管道因阶段失败而中止"
	}
	log.Infof("[Orchestrator] 管道执行完成, FileID: %s, success: %v", ec.Record.ID, result.Success)
	return result
}

// applyFailurePolicy 应用失败策略：
// 关键阶段失败总是中止管道，即使配置了 ContinueOnStageFailure；
// 非关键阶段失败时按 ContinueOnStageFailure 决定是否继续；
// 列入 NonCriticalStages 的阶段失败不影响整体 success 标志。
func (o *Orchestrator) applyFailurePolicy(name string, res StageResult, result *model.PipelineExecutionResult, aborted *bool) {
	if _, soft := o.nonCritical[name]; !soft {
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("阶段 %s 失败: %s", name, res.Message)
		}
	}

	if _, isCritical := o.critical[name]; isCritical {
		log.Warnf("[Orchestrator] 关键阶段 '%s' 失败, 中止管道", name)
		*aborted = true
		return
	}
	if !o.cfg.ContinueOnStageFailure {
		*aborted = true
	}
}

// runWithTimeout 在有限时长内运行一个阶段。超时与取消均转换为失败结果；
// 超时后底层外部调用可能仍在后台完成，因此各阶段的外部写入必须幂等。
func (o *Orchestrator) runWithTimeout(ctx context.Context, stage Stage, ec *ExecutionContext) StageResult {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan StageResult, 1)
	go func() {
		done <- runGuarded(runCtx, stage, ec)
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Failed("timeout")
		}
		return Failed(fmt.Sprintf("已取消: %v", runCtx.Err()))
	}
}

func toStageExecution(name string, res StageResult, duration time.Duration) model.StageExecution {
	return model.StageExecution{
		Name:         name,
		Success:      res.Success,
		DurationMs:   duration.Milliseconds(),
		ErrorMessage: res.Message,
		Metadata:     res.Metadata,
		CompletedAt:  model.LocalTime(time.Now()),
	}
}
