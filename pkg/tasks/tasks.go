// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// AIEnrichmentTask 是异步 AI 补充提取任务的载荷。
// 当上传时 AI 提供方不可用时，入口服务投递此任务，
// 消费端重新拉取已存储的文件字节并补做元数据提取。
type AIEnrichmentTask struct {
	FileID     string `json:"file_id"`
	TenantID   string `json:"tenant_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}
