// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"silo-go/internal/model"
)

// FileRecordRepository 接口定义了文件记录的数据持久化操作。
// 所有查询都以租户为作用域。
type FileRecordRepository interface {
	Create(record *model.FileRecord) error
	Update(record *model.FileRecord) error
	FindByID(tenantID, id string) (*model.FileRecord, error)
	FindByChecksum(tenantID, checksum string) ([]model.FileRecord, error)
	FindByTenant(tenantID string, limit, offset int) ([]model.FileRecord, error)
	SoftDelete(tenantID, id string) error
	Archive(tenantID, id string) error
}

// fileRecordRepository 是 FileRecordRepository 接口的 GORM 实现。
type fileRecordRepository struct {
	db *gorm.DB
}

// NewFileRecordRepository 创建一个新的 FileRecordRepository 实例。
func NewFileRecordRepository(db *gorm.DB) FileRecordRepository {
	return &fileRecordRepository{db: db}
}

// Create 在数据库中创建一条文件记录。
func (r *fileRecordRepository) Create(record *model.FileRecord) error {
	return r.db.Create(record).Error
}

// Update 整体保存一条文件记录。
func (r *fileRecordRepository) Update(record *model.FileRecord) error {
	return r.db.Save(record).Error
}

// FindByID 按租户和 ID 检索文件记录，软删除的记录不返回。
func (r *fileRecordRepository) FindByID(tenantID, id string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.db.Where("tenant_id = ? AND id = ? AND deleted = ?", tenantID, id, false).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByChecksum 按内容摘要查找租户内的文件记录，用于去重查询。
func (r *fileRecordRepository) FindByChecksum(tenantID, checksum string) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("tenant_id = ? AND checksum = ? AND deleted = ?", tenantID, checksum, false).
		Find(&records).Error
	return records, err
}

// FindByTenant 分页列出租户内的文件记录。
func (r *fileRecordRepository) FindByTenant(tenantID string, limit, offset int) ([]model.FileRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []model.FileRecord
	err := r.db.Where("tenant_id = ? AND deleted = ?", tenantID, false).
		Order("created_at desc").Limit(limit).Offset(offset).
		Find(&records).Error
	return records, err
}

// SoftDelete 软删除一条文件记录。管道自身从不删除记录，删除只由外部调用触发。
func (r *fileRecordRepository) SoftDelete(tenantID, id string) error {
	now := time.Now()
	return r.db.Model(&model.FileRecord{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{"deleted": true, "deleted_at": &now}).Error
}

// Archive 把记录置为归档状态。
func (r *fileRecordRepository) Archive(tenantID, id string) error {
	return r.db.Model(&model.FileRecord{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", model.StatusArchived).Error
}
