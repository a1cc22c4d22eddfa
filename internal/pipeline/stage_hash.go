package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"silo-go/pkg/log"
)

// HashingStage 对完整文件流计算 SHA-256 摘要，
// 写入 FileRecord.Checksum 并存入 scratch 供哈希索引与版本阶段复用。
type HashingStage struct{}

// NewHashingStage 创建摘要计算阶段。
func NewHashingStage() *HashingStage {
	return &HashingStage{}
}

func (s *HashingStage) Name() string           { return StageHashing }
func (s *HashingStage) Order() int             { return 50 }
func (s *HashingStage) Dependencies() []string { return nil }

// Run 计算流的 SHA-256 摘要。计算前后均重置流位置。
func (s *HashingStage) Run(ctx context.Context, ec *ExecutionContext) StageResult {
	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	hasher := sha256.New()
	n, err := io.Copy(hasher, ec.Stream)
	if err != nil {
		return Failed(fmt.Sprintf("读取文件流失败: %v", err))
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	ec.Record.Checksum = digest
	ec.SetScratch(ScratchContentHash, digest)

	// 后续阶段（扫描、存储）需要完整重读文件内容
	if err := ec.ResetStream(); err != nil {
		return Failed(err.Error())
	}

	log.Infof("[Hashing] 摘要计算完成, FileID: %s, sha256: %s, 大小: %d字节", ec.Record.ID, digest, n)
	return Succeeded(map[string]interface{}{"sha256": digest, "bytes": n})
}
