// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"silo-go/internal/config"
	"silo-go/internal/model"
	"silo-go/pkg/log"
)

// ErrNotFound 表示索引中不存在指定文档。
var ErrNotFound = errors.New("document not found")

// Client 封装文件记录在 Elasticsearch 中的索引操作，
// 实现管道的 SearchIndex 契约。文档以文件 ID 为键。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并幂等地创建文件索引。
// 进程启动时调用一次。
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: esClient, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，不存在则按文件记录结构创建。
func (c *Client) createIndexIfNotExists() error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"file_id": { "type": "keyword" },
				"tenant_id": { "type": "keyword" },
				"file_name": { "type": "text" },
				"mime_type": { "type": "keyword" },
				"size": { "type": "long" },
				"checksum": { "type": "keyword" },
				"status": { "type": "keyword" },
				"storage_path": { "type": "keyword" },
				"thumbnail_path": { "type": "keyword" },
				"extracted_text": { "type": "text" },
				"tags": { "type": "keyword" },
				"categories": { "type": "keyword" },
				"metadata": { "type": "object", "enabled": true },
				"version": { "type": "integer" },
				"created_at": { "type": "date" },
				"processed_at": { "type": "date" }
			}
		}
	}`

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// Index 以文件 ID 为文档 ID 写入一条文件文档。重复写入覆盖旧文档，幂等。
func (c *Client) Index(ctx context.Context, doc model.EsFileDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.FileID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// Update 整体覆盖已有文档。索引操作本身即幂等 upsert，直接复用 Index。
func (c *Client) Update(ctx context.Context, doc model.EsFileDocument) error {
	return c.Index(ctx, doc)
}

// Get 按文件 ID 读取文档，不存在时返回 ErrNotFound。
func (c *Client) Get(ctx context.Context, fileID string) (*model.EsFileDocument, error) {
	req := esapi.GetRequest{Index: c.indexName, DocumentID: fileID}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("读取文档出错: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Source model.EsFileDocument `json:"_source"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("解析文档响应失败: %w", err)
	}
	return &envelope.Source, nil
}

// Remove 按文件 ID 删除文档。文档不存在视为成功。
func (c *Client) Remove(ctx context.Context, fileID string) error {
	req := esapi.DeleteRequest{Index: c.indexName, DocumentID: fileID, Refresh: "true"}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("删除文档出错: %s", res.String())
	}
	return nil
}
