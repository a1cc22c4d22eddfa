package pipeline

import (
	"context"
	"fmt"

	"silo-go/pkg/log"
)

// HashIndexStage 将 (摘要 → 文件ID) 注册到外部去重索引。
// 注册失败默认不致命（通过 NonCriticalStages 配置），也不会污染 FileRecord。
type HashIndexStage struct {
	index HashIndex
}

// NewHashIndexStage 创建哈希索引注册阶段。
func NewHashIndexStage(index HashIndex) *HashIndexStage {
	return &HashIndexStage{index: index}
}

func (s *HashIndexStage) Name() string           { return StageHashIndex }
func (s *HashIndexStage) Order() int             { return 60 }
func (s *HashIndexStage) Dependencies() []string { return []string{StageHashing} }

// Run 幂等地把摘要与文件 ID 的映射写入去重索引。
func (s *HashIndexStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	digest, ok := ec.ScratchString(ScratchContentHash)
	if !ok || digest == "" {
		digest = ec.Record.Checksum
	}
	if digest == "" {
		return Failed("缺少内容摘要, 无法注册哈希索引")
	}

	if err := s.index.Upsert(ctx, digest, ec.Record.ID); err != nil {
		return Failed(fmt.Sprintf("注册哈希索引失败: %v", err))
	}

	log.Infof("[HashIndex] 摘要已注册, FileID: %s, digest: %s", ec.Record.ID, digest)
	return Succeeded(map[string]interface{}{"digest": digest})
}
