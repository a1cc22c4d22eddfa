package pipeline

import (
	"context"
	"fmt"

	"silo-go/pkg/log"
)

// VersionStage 为文件创建不可变版本快照并把记录指向当前版本。
// 版本号按 (租户, 逻辑路径) 严格递增，分配在数据库串行化点内完成。
// 失败会被上报，但不影响已存储的文件字节。
type VersionStage struct {
	versions VersionCreator
}

// NewVersionStage 创建版本快照阶段。
func NewVersionStage(versions VersionCreator) *VersionStage {
	return &VersionStage{versions: versions}
}

func (s *VersionStage) Name() string           { return StageVersion }
func (s *VersionStage) Order() int             { return 500 }
func (s *VersionStage) Dependencies() []string { return []string{StageStore, StageHashing} }

// Run 创建版本快照并更新记录的版本号。
func (s *VersionStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	description := fmt.Sprintf("上传 %s", ec.Record.FileName)
	version, err := s.versions.CreateVersion(ctx, ec.Record, description, "upload")
	if err != nil {
		return Failed(fmt.Sprintf("创建版本快照失败: %v", err))
	}

	ec.Record.Version = version.VersionNumber
	log.Infof("[Version] 版本快照已创建, FileID: %s, 版本号: %d", ec.Record.ID, version.VersionNumber)
	return Succeeded(map[string]interface{}{
		"versionNumber": version.VersionNumber,
		"checksum":      version.Checksum,
	})
}
