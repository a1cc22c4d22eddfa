package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"silo-go/internal/model"
)

// VersionRepository 接口定义了文件版本快照的持久化操作。
// CreateVersion 同时实现管道的 VersionCreator 契约。
type VersionRepository interface {
	CreateVersion(ctx context.Context, record *model.FileRecord, description, versionType string) (*model.FileVersion, error)
	FindByFile(fileID string) ([]model.FileVersion, error)
}

// versionRepository 是 VersionRepository 接口的 GORM 实现。
type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository 创建一个新的 VersionRepository 实例。
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

// CreateVersion 在一个事务内为 (租户, 逻辑路径) 分配下一个版本号并写入快照。
// 版本键是逻辑路径而非存储路径（存储路径带每次上传生成的记录 ID）。
// 行锁 + (tenant_id, path, version_number) 唯一索引共同保证并发上传
// 同一路径时版本号严格递增、从不重复。
func (r *versionRepository) CreateVersion(ctx context.Context, record *model.FileRecord, description, versionType string) (*model.FileVersion, error) {
	path := record.LogicalPath()
	version := &model.FileVersion{
		FileID:            record.ID,
		TenantID:          record.TenantID,
		Path:              path,
		StoragePath:       record.StoragePath,
		Checksum:          record.Checksum,
		Size:              record.Size,
		VersionType:       versionType,
		ChangeDescription: description,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current struct{ Max int }
		err := tx.Model(&model.FileVersion{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("COALESCE(MAX(version_number), 0) AS max").
			Where("tenant_id = ? AND path = ?", record.TenantID, path).
			Scan(&current).Error
		if err != nil {
			return fmt.Errorf("查询当前版本号失败: %w", err)
		}
		version.VersionNumber = current.Max + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// FindByFile 按文件 ID 列出全部版本快照，新版本在前。
func (r *versionRepository) FindByFile(fileID string) ([]model.FileVersion, error) {
	var versions []model.FileVersion
	err := r.db.Where("file_id = ?", fileID).
		Order("version_number desc").
		Find(&versions).Error
	return versions, err
}
