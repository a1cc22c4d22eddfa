package model

// StageExecution 记录单个阶段的执行结果，按执行顺序聚合到 PipelineExecutionResult。
type StageExecution struct {
	Name         string                 `json:"name"`
	Success      bool                   `json:"success"`
	DurationMs   int64                  `json:"durationMs"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CompletedAt  LocalTime              `json:"completedAt"`
}

// PipelineExecutionResult 是一次管道执行返回给调用方的聚合结果。
// Success 为 true 当且仅当没有任何非"非关键"阶段报告失败。
type PipelineExecutionResult struct {
	FileID  string           `json:"fileId"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Stages  []StageExecution `json:"stages"`
}

// FailedStages 返回所有报告失败的阶段名，便于日志与响应组装。
func (r *PipelineExecutionResult) FailedStages() []string {
	var failed []string
	for _, s := range r.Stages {
		if !s.Success {
			failed = append(failed, s.Name)
		}
	}
	return failed
}
