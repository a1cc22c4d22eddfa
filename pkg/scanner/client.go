// Package scanner 提供了一个与病毒扫描服务（REST 接口）交互的客户端。
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"silo-go/internal/config"
	"silo-go/internal/model"
)

// Client 是病毒扫描服务的客户端，实现管道的 Scanner 契约。
type Client struct {
	serverURL string
	name      string
	version   string
	client    *http.Client
}

// NewClient 创建一个新的扫描客户端实例。
func NewClient(cfg config.ScannerConfig) *Client {
	return &Client{
		serverURL: cfg.ServerURL,
		name:      cfg.Name,
		version:   cfg.Version,
		client:    &http.Client{},
	}
}

// scanResponse 是扫描服务返回的 JSON 结构。
type scanResponse struct {
	Clean  bool   `json:"clean"`
	Threat string `json:"threat,omitempty"`
}

// Scan 以 multipart 形式提交文件流，返回扫描结论。
func (c *Client) Scan(ctx context.Context, reader io.Reader, fileName string) (*model.ScanResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, reader); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/scan", pr)
	if err != nil {
		return nil, fmt.Errorf("创建扫描请求失败: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用扫描服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("扫描服务返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析扫描响应失败: %w", err)
	}

	return &model.ScanResult{
		Clean:          result.Clean,
		ThreatName:     result.Threat,
		ScannerName:    c.name,
		ScannerVersion: c.version,
		ScannedAt:      time.Now(),
	}, nil
}
