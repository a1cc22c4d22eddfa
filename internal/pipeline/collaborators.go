package pipeline

import (
	"context"
	"io"

	"silo-go/internal/model"
)

// 本文件定义管道各阶段调用的外部协作方契约。
// 具体实现位于 pkg/ 下（MinIO、Elasticsearch、扫描服务、AI 提供方等），
// 阶段只依赖这些接口，便于在测试中用假实现替换。

// ObjectStore 抽象租户级对象存储。
type ObjectStore interface {
	// Upload 将流写入租户作用域内的对象路径，返回最终存储路径。
	Upload(ctx context.Context, tenantID, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	// Download 读取租户作用域内的对象。
	Download(ctx context.Context, tenantID, objectName string) (io.ReadCloser, error)
}

// SearchIndex 抽象搜索/索引服务，文档以文件 ID 为键。
type SearchIndex interface {
	Index(ctx context.Context, doc model.EsFileDocument) error
	Update(ctx context.Context, doc model.EsFileDocument) error
}

// Scanner 抽象病毒扫描服务。
type Scanner interface {
	Scan(ctx context.Context, reader io.Reader, fileName string) (*model.ScanResult, error)
}

// HashIndex 抽象摘要到文件 ID 的外部去重索引。
// Upsert 必须是幂等的，并发重复注册无害。
type HashIndex interface {
	Upsert(ctx context.Context, digest, fileID string) error
	Lookup(ctx context.Context, digest string) ([]string, error)
}

// ExtractionRequest 是一次 AI 元数据提取的输入。
type ExtractionRequest struct {
	FileName string
	MimeType string
	Size     int64
	// Content 为已提取的文本内容，可为空。
	Content string
}

// Extraction 是 AI 提取的结果。Success 为 false 表示提供方无法给出结论，
// 属于软失败，不应阻断管道。
type Extraction struct {
	Success     bool
	Category    string
	Description string
	Tags        []string
	Fields      map[string]interface{}
	Confidence  float64
	Error       string
}

// AIProvider 是可插拔的 AI 元数据提取提供方。
type AIProvider interface {
	Name() string
	Extract(ctx context.Context, req ExtractionRequest) (*Extraction, error)
}

// AIFactory 返回当前可用的 AI 提供方；AI 关闭或不可达时返回 nil。
type AIFactory interface {
	Provider() AIProvider
}

// TextExtractor 抽象文本内容提取服务（如 Tika）。
type TextExtractor interface {
	ExtractText(ctx context.Context, reader io.Reader, fileName string) (string, error)
}

// VersionCreator 为文件创建不可变版本快照，版本号按 (租户, 路径) 严格递增。
type VersionCreator interface {
	CreateVersion(ctx context.Context, record *model.FileRecord, description, versionType string) (*model.FileVersion, error)
}

// Thumbnailer 为受支持的 MIME 类型生成缩略图。
type Thumbnailer interface {
	Supports(mimeType string) bool
	// Generate 返回缩略图字节与其 content type。
	Generate(reader io.Reader, mimeType string) ([]byte, string, error)
}
