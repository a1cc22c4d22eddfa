// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"
)

// FileStatus 表示文件在处理生命周期中的状态。
type FileStatus string

// 文件状态机：pending → scanning → processing → processed → indexed，
// 终态分支为 error / quarantined / archived。
const (
	StatusPending     FileStatus = "pending"
	StatusScanning    FileStatus = "scanning"
	StatusProcessing  FileStatus = "processing"
	StatusProcessed   FileStatus = "processed"
	StatusIndexed     FileStatus = "indexed"
	StatusError       FileStatus = "error"
	StatusQuarantined FileStatus = "quarantined"
	StatusArchived    FileStatus = "archived"
)

// ScanResult 记录一次病毒扫描的结论。
type ScanResult struct {
	Clean          bool      `json:"clean"`
	ThreatName     string    `json:"threatName,omitempty"`
	ScannerName    string    `json:"scannerName"`
	ScannerVersion string    `json:"scannerVersion"`
	ScannedAt      time.Time `json:"scannedAt"`
}

// FileRecord 定义了 file_record 表的 ORM 模型。
// 它描述一个逻辑文件在整个处理生命周期中的全部属性，
// 由管道的各个阶段逐步填充，管道本身从不删除记录（软删除由外部触发）。
type FileRecord struct {
	ID           string                 `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID     string                 `gorm:"type:varchar(64);not null;index" json:"tenantId"`
	FileName     string                 `gorm:"type:varchar(255);not null" json:"fileName"`
	OriginalPath string                 `gorm:"type:varchar(512)" json:"originalPath"`
	StoragePath  string                 `gorm:"type:varchar(512)" json:"storagePath"`
	Size         int64                  `gorm:"not null" json:"size"`
	MimeType     string                 `gorm:"type:varchar(128)" json:"mimeType"`
	Checksum     string                 `gorm:"type:varchar(64);index" json:"checksum"`
	Status       FileStatus             `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	Metadata     map[string]interface{} `gorm:"serializer:json" json:"metadata"`
	Tags         []string               `gorm:"serializer:json" json:"tags"`
	Categories   []string               `gorm:"serializer:json" json:"categories"`
	ScanResult   *ScanResult            `gorm:"serializer:json" json:"scanResult,omitempty"`
	ThumbnailPath string                `gorm:"type:varchar(512)" json:"thumbnailPath,omitempty"`
	ExtractedText string                `gorm:"type:mediumtext" json:"-"`
	Version      int                    `gorm:"not null;default:0" json:"version"`
	Deleted      bool                   `gorm:"not null;default:false" json:"deleted"`
	DeletedAt    *time.Time             `gorm:"default:null" json:"deletedAt,omitempty"`
	CreatedAt    time.Time              `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time              `gorm:"autoUpdateTime" json:"updatedAt"`
	ProcessedAt  *time.Time             `gorm:"default:null" json:"processedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "file_record"
}

// LogicalPath 返回版本序列所依据的逻辑路径。
// 同一租户内相同逻辑路径的多次上传共享一个版本序列；
// 存储路径带有每次上传生成的记录 ID，不能用作版本键。
func (r *FileRecord) LogicalPath() string {
	if r.OriginalPath != "" {
		return r.OriginalPath
	}
	return r.FileName
}

// SetMetadata 向元数据 map 写入一个键值，map 未初始化时先初始化。
func (r *FileRecord) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// MergeMetadata 以只增不覆盖的方式合并一批元数据。
// 已存在的键保持原值，用于异步补充提取结果时避免覆盖其他阶段写入的字段。
func (r *FileRecord) MergeMetadata(fields map[string]interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	for k, v := range fields {
		if _, exists := r.Metadata[k]; !exists {
			r.Metadata[k] = v
		}
	}
}

// AddTags 追加标签并去重。
func (r *FileRecord) AddTags(tags ...string) {
	seen := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		seen[t] = struct{}{}
	}
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			r.Tags = append(r.Tags, t)
		}
	}
}
