// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"silo-go/internal/middleware"
	"silo-go/internal/service"
	"silo-go/pkg/log"
)

// FileHandler 负责处理文件上传与文件管理相关的 API 请求。
type FileHandler struct {
	ingestService service.IngestService
	fileService   service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(ingestService service.IngestService, fileService service.FileService) *FileHandler {
	return &FileHandler{ingestService: ingestService, fileService: fileService}
}

// Upload 处理文件上传请求：接收 multipart 文件并同步执行处理管道，
// 响应中返回文件记录与每个阶段的执行结论。
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未能获取上传的文件"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传的文件"})
		return
	}
	defer file.Close()

	tenantID := middleware.TenantID(c)
	mimeType := header.Header.Get("Content-Type")

	record, result, err := h.ingestService.Upload(c.Request.Context(), tenantID, header.Filename, mimeType, header.Size, file)
	if err != nil {
		log.Error("Upload: 文件接收失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文件上传失败: " + err.Error()})
		return
	}

	status := http.StatusOK
	message := "文件处理完成"
	if !result.Success {
		// 文件已接收但管道未完全成功，记录与各阶段结论一并返回
		status = http.StatusUnprocessableEntity
		message = "文件已接收，但处理未完全成功"
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data": gin.H{
			"file":     record,
			"pipeline": result,
		},
	})
}

// GetFile 处理获取单个文件记录的请求。
func (h *FileHandler) GetFile(c *gin.Context) {
	record, err := h.fileService.GetFile(middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
			return
		}
		log.Error("GetFile: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": record})
}

// ListFiles 处理分页列出文件记录的请求。
func (h *FileHandler) ListFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.fileService.ListFiles(middleware.TenantID(c), limit, offset)
	if err != nil {
		log.Error("ListFiles: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": records})
}

// Download 处理下载请求，返回一个限时的预签名下载链接。
func (h *FileHandler) Download(c *gin.Context) {
	url, err := h.fileService.GenerateDownloadURL(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
			return
		}
		log.Error("Download: 签发下载链接失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发下载链接失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"url": url}})
}

// DeleteFile 处理删除文件的请求（软删除）。
func (h *FileHandler) DeleteFile(c *gin.Context) {
	err := h.fileService.DeleteFile(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
			return
		}
		log.Error("DeleteFile: 删除失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文件失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件已删除"})
}

// ArchiveFile 处理归档文件的请求。
func (h *FileHandler) ArchiveFile(c *gin.Context) {
	err := h.fileService.ArchiveFile(middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
			return
		}
		log.Error("ArchiveFile: 归档失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "归档文件失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件已归档"})
}

// ListVersions 处理列出文件版本历史的请求。
func (h *FileHandler) ListVersions(c *gin.Context) {
	versions, err := h.fileService.ListVersions(middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文件不存在"})
			return
		}
		log.Error("ListVersions: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询版本历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": versions})
}

// FindDuplicates 处理按内容摘要查找重复文件的请求。
func (h *FileHandler) FindDuplicates(c *gin.Context) {
	duplicates, err := h.fileService.FindDuplicates(c.Request.Context(), middleware.TenantID(c), c.Param("hash"))
	if err != nil {
		log.Error("FindDuplicates: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询重复文件失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": duplicates})
}
