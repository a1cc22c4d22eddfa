package model

import "time"

// FileVersion 定义了 file_version 表的 ORM 模型。
// 每条记录是一个不可变的版本快照，(tenant_id, path, version_number) 全局唯一，
// 版本号按 (租户, 逻辑路径) 严格递增，由数据库事务内的行锁保证不重复分配。
// Path 是逻辑路径（FileRecord.LogicalPath），StoragePath 是该快照对应的对象键。
type FileVersion struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID            string    `gorm:"type:varchar(36);not null;index" json:"fileId"`
	TenantID          string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_tenant_path_version" json:"tenantId"`
	Path              string    `gorm:"type:varchar(512);not null;uniqueIndex:uk_tenant_path_version" json:"path"`
	StoragePath       string    `gorm:"type:varchar(512)" json:"storagePath"`
	VersionNumber     int       `gorm:"not null;uniqueIndex:uk_tenant_path_version" json:"versionNumber"`
	Checksum          string    `gorm:"type:varchar(64);not null" json:"checksum"`
	Size              int64     `gorm:"not null" json:"size"`
	VersionType       string    `gorm:"type:varchar(32)" json:"versionType"`
	ChangeDescription string    `gorm:"type:varchar(512)" json:"changeDescription"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileVersion) TableName() string {
	return "file_version"
}
