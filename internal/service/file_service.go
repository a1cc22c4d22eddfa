package service

import (
	"context"
	"fmt"
	"time"

	"silo-go/internal/model"
	"silo-go/internal/pipeline"
	"silo-go/internal/repository"
	"silo-go/pkg/log"
)

// URLSigner 为对象签发限时下载链接（由对象存储客户端实现）。
type URLSigner interface {
	PresignedURL(ctx context.Context, tenantID, objectName string, expiry time.Duration) (string, error)
}

// SearchRemover 从搜索索引中删除文档（由搜索客户端实现）。
type SearchRemover interface {
	Remove(ctx context.Context, fileID string) error
}

// FileService 接口定义了已入库文件的查询与管理操作。
type FileService interface {
	GetFile(tenantID, id string) (*model.FileRecord, error)
	ListFiles(tenantID string, limit, offset int) ([]model.FileRecord, error)
	GenerateDownloadURL(ctx context.Context, tenantID, id string) (string, error)
	DeleteFile(ctx context.Context, tenantID, id string) error
	ArchiveFile(tenantID, id string) error
	ListVersions(tenantID, id string) ([]model.FileVersion, error)
	FindDuplicates(ctx context.Context, tenantID, checksum string) ([]model.FileRecord, error)
}

type fileService struct {
	fileRepo    repository.FileRecordRepository
	versionRepo repository.VersionRepository
	hashIndex   pipeline.HashIndex
	store       URLSigner
	search      SearchRemover
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(
	fileRepo repository.FileRecordRepository,
	versionRepo repository.VersionRepository,
	hashIndex pipeline.HashIndex,
	store URLSigner,
	search SearchRemover,
) FileService {
	return &fileService{
		fileRepo:    fileRepo,
		versionRepo: versionRepo,
		hashIndex:   hashIndex,
		store:       store,
		search:      search,
	}
}

// GetFile 按租户和 ID 查询一条文件记录。
func (s *fileService) GetFile(tenantID, id string) (*model.FileRecord, error) {
	return s.fileRepo.FindByID(tenantID, id)
}

// ListFiles 分页列出租户内的文件记录。
func (s *fileService) ListFiles(tenantID string, limit, offset int) ([]model.FileRecord, error) {
	return s.fileRepo.FindByTenant(tenantID, limit, offset)
}

// GenerateDownloadURL 为文件签发一个限时下载链接。
func (s *fileService) GenerateDownloadURL(ctx context.Context, tenantID, id string) (string, error) {
	record, err := s.fileRepo.FindByID(tenantID, id)
	if err != nil {
		return "", err
	}
	if record.StoragePath == "" {
		return "", fmt.Errorf("文件尚未持久存储")
	}
	objectName := fmt.Sprintf("files/%s/%s", record.ID, record.FileName)
	return s.store.PresignedURL(ctx, tenantID, objectName, 15*time.Minute)
}

// DeleteFile 软删除文件记录并移除搜索索引中的文档。
// 索引清理失败只记录，记录删除成功即视为删除成功。
func (s *fileService) DeleteFile(ctx context.Context, tenantID, id string) error {
	if _, err := s.fileRepo.FindByID(tenantID, id); err != nil {
		return err
	}
	if err := s.fileRepo.SoftDelete(tenantID, id); err != nil {
		return err
	}
	if err := s.search.Remove(ctx, id); err != nil {
		log.Errorf("[File] 删除搜索索引文档失败, FileID: %s, error: %v", id, err)
	}
	log.Infof("[File] 文件已删除, FileID: %s, TenantID: %s", id, tenantID)
	return nil
}

// ArchiveFile 把文件记录置为归档状态。
func (s *fileService) ArchiveFile(tenantID, id string) error {
	if _, err := s.fileRepo.FindByID(tenantID, id); err != nil {
		return err
	}
	return s.fileRepo.Archive(tenantID, id)
}

// ListVersions 列出文件的版本历史，新版本在前。
func (s *fileService) ListVersions(tenantID, id string) ([]model.FileVersion, error) {
	if _, err := s.fileRepo.FindByID(tenantID, id); err != nil {
		return nil, err
	}
	return s.versionRepo.FindByFile(id)
}

// FindDuplicates 按内容摘要查找租户内拥有该内容的全部文件。
// 摘要索引是全局的，结果必须按租户过滤后返回。
func (s *fileService) FindDuplicates(ctx context.Context, tenantID, checksum string) ([]model.FileRecord, error) {
	if checksum == "" {
		return nil, nil
	}

	ids, err := s.hashIndex.Lookup(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("查询摘要索引失败: %w", err)
	}

	var duplicates []model.FileRecord
	for _, dupID := range ids {
		dup, err := s.fileRepo.FindByID(tenantID, dupID)
		if err != nil {
			// 其他租户的文件或已删除的记录，跳过
			continue
		}
		duplicates = append(duplicates, *dup)
	}
	return duplicates, nil
}
