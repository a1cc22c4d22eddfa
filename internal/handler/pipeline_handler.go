package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"silo-go/internal/config"
	"silo-go/internal/pipeline"
)

// PipelineHandler 负责处理管道运行状态查询与阶段开关的 API 请求。
type PipelineHandler struct {
	orchestrator *pipeline.Orchestrator
	cfg          config.PipelineConfig
}

// NewPipelineHandler 创建一个新的 PipelineHandler 实例。
func NewPipelineHandler(orchestrator *pipeline.Orchestrator, cfg config.PipelineConfig) *PipelineHandler {
	return &PipelineHandler{orchestrator: orchestrator, cfg: cfg}
}

// Status 返回管道当前的阶段列表、启用状态与失败策略配置。
func (h *PipelineHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"stages":                    h.orchestrator.StageNames(),
			"enabled_stages":            h.orchestrator.EnabledStages(),
			"stage_timeout_seconds":     h.cfg.StageTimeoutSeconds,
			"continue_on_stage_failure": h.cfg.ContinueOnStageFailure,
			"critical_stages":           h.cfg.CriticalStages,
			"non_critical_stages":       h.cfg.NonCriticalStages,
		},
	})
}

// EnableStage 在运行时启用一个阶段。
func (h *PipelineHandler) EnableStage(c *gin.Context) {
	name := c.Param("name")
	if err := h.orchestrator.EnableStage(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "阶段已启用: " + name})
}

// DisableStage 在运行时禁用一个阶段。
func (h *PipelineHandler) DisableStage(c *gin.Context) {
	name := c.Param("name")
	if err := h.orchestrator.DisableStage(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "阶段已禁用: " + name})
}
