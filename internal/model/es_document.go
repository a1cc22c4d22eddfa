package model

import "time"

// EsFileDocument 定义了存储在 Elasticsearch 中的文件文档结构，
// 以 FileRecord.ID 作为文档 ID，供全文检索与去重查询使用。
type EsFileDocument struct {
	FileID        string                 `json:"file_id"`
	TenantID      string                 `json:"tenant_id"`
	FileName      string                 `json:"file_name"`
	MimeType      string                 `json:"mime_type"`
	Size          int64                  `json:"size"`
	Checksum      string                 `json:"checksum"`
	Status        string                 `json:"status"`
	StoragePath   string                 `json:"storage_path"`
	ThumbnailPath string                 `json:"thumbnail_path,omitempty"`
	ExtractedText string                 `json:"extracted_text,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Categories    []string               `json:"categories,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
}

// NewEsFileDocument 从 FileRecord 构建 ES 文档。
func NewEsFileDocument(r *FileRecord) EsFileDocument {
	return EsFileDocument{
		FileID:        r.ID,
		TenantID:      r.TenantID,
		FileName:      r.FileName,
		MimeType:      r.MimeType,
		Size:          r.Size,
		Checksum:      r.Checksum,
		Status:        string(r.Status),
		StoragePath:   r.StoragePath,
		ThumbnailPath: r.ThumbnailPath,
		ExtractedText: r.ExtractedText,
		Tags:          r.Tags,
		Categories:    r.Categories,
		Metadata:      r.Metadata,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		ProcessedAt:   r.ProcessedAt,
	}
}
