package pipeline

import (
	"context"
	"fmt"

	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// ScanStage 把文件流提交给外部病毒扫描服务。
// 检出威胁时把记录置为 Quarantined 并返回失败，
// 依赖它的存储与索引阶段随之被失败策略拦截。
type ScanStage struct {
	scanner Scanner
}

// NewScanStage 创建病毒扫描阶段。
func NewScanStage(scanner Scanner) *ScanStage {
	return &ScanStage{scanner: scanner}
}

func (s *ScanStage) Name() string           { return StageScan }
func (s *ScanStage) Order() int             { return 100 }
func (s *ScanStage) Dependencies() []string { return nil }

// Run 执行病毒扫描并在记录上附加 ScanResult。
func (s *ScanStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	ec.Record.Status = model.StatusScanning

	if err := ec.ResetStream(); err != nil {
		ec.Record.Status = model.StatusError
		return Failed(err.Error())
	}

	scanResult, err := s.scanner.Scan(ctx, ec.Stream, ec.Record.FileName)
	if err != nil {
		// 扫描服务不可达属于不可恢复故障：不放行未经扫描的文件
		ec.Record.Status = model.StatusError
		return Failed(fmt.Sprintf("病毒扫描失败: %v", err))
	}

	ec.Record.ScanResult = scanResult
	if err := ec.ResetStream(); err != nil {
		ec.Record.Status = model.StatusError
		return Failed(err.Error())
	}

	if !scanResult.Clean {
		ec.Record.Status = model.StatusQuarantined
		log.Warnf("[Scan] 检出威胁, FileID: %s, 威胁: %s, 扫描器: %s",
			ec.Record.ID, scanResult.ThreatName, scanResult.ScannerName)
		return FailedWith(fmt.Sprintf("检出威胁: %s", scanResult.ThreatName),
			map[string]interface{}{"threat": scanResult.ThreatName})
	}

	ec.Record.Status = model.StatusProcessing
	log.Infof("[Scan] 扫描通过, FileID: %s, 扫描器: %s/%s",
		ec.Record.ID, scanResult.ScannerName, scanResult.ScannerVersion)
	return Succeeded(map[string]interface{}{"clean": true, "scanner": scanResult.ScannerName})
}
