// Package storage 提供了与对象存储服务（MinIO）交互的功能。
// 每个租户对应一个独立的存储桶，桶名为 <bucket_prefix>-<tenant_id>。
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"silo-go/internal/config"
	"silo-go/pkg/log"
)

// Client 封装租户级对象存储操作，实现管道的 ObjectStore 契约。
type Client struct {
	mc           *minio.Client
	bucketPrefix string

	mu      sync.Mutex
	ensured map[string]struct{}
}

// NewClient 初始化 MinIO 客户端。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")
	return &Client{
		mc:           mc,
		bucketPrefix: cfg.BucketPrefix,
		ensured:      make(map[string]struct{}),
	}, nil
}

// bucketName 计算租户对应的桶名。桶名只允许小写字母、数字和连字符。
func (c *Client) bucketName(tenantID string) string {
	name := fmt.Sprintf("%s-%s", c.bucketPrefix, strings.ToLower(tenantID))
	return strings.ReplaceAll(name, "_", "-")
}

// ensureBucket 确保租户桶存在，不存在则创建（幂等）。
func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	c.mu.Lock()
	if _, ok := c.ensured[bucket]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 '%s' 失败: %w", bucket, err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucket)
		if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// 并发创建时可能已被其他执行创建，再查一次
			exists, checkErr := c.mc.BucketExists(ctx, bucket)
			if checkErr != nil || !exists {
				return fmt.Errorf("创建存储桶 '%s' 失败: %w", bucket, err)
			}
		}
	}

	c.mu.Lock()
	c.ensured[bucket] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Upload 将流写入租户桶内的对象路径，返回 "bucket/objectName" 形式的存储路径。
// 以相同路径重复上传会覆盖同一对象，写入是幂等的。
func (c *Client) Upload(ctx context.Context, tenantID, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket := c.bucketName(tenantID)
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}

	_, err := c.mc.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传对象 '%s' 失败: %w", objectName, err)
	}
	return fmt.Sprintf("%s/%s", bucket, objectName), nil
}

// Download 读取租户桶内的对象。
func (c *Client) Download(ctx context.Context, tenantID, objectName string) (io.ReadCloser, error) {
	bucket := c.bucketName(tenantID)
	object, err := c.mc.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下载对象 '%s' 失败: %w", objectName, err)
	}
	return object, nil
}

// Exists 检查租户桶内的对象是否存在。
func (c *Client) Exists(ctx context.Context, tenantID, objectName string) (bool, error) {
	bucket := c.bucketName(tenantID)
	_, err := c.mc.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete 删除租户桶内的对象。
func (c *Client) Delete(ctx context.Context, tenantID, objectName string) error {
	bucket := c.bucketName(tenantID)
	return c.mc.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL 为租户桶内的对象签发一个限时下载链接。
func (c *Client) PresignedURL(ctx context.Context, tenantID, objectName string, expiry time.Duration) (string, error) {
	bucket := c.bucketName(tenantID)
	presignedURL, err := c.mc.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("签发下载链接失败, object: %s, error: %v", objectName, err)
		return "", err
	}
	return presignedURL.String(), nil
}
