// Package ai 提供了可插拔的 AI 元数据提取能力。
// Factory 按配置返回提供方实例；AI 关闭或未配置时返回 nil，
// 管道的 AI 阶段据此降级为软成功。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"silo-go/internal/config"
	"silo-go/internal/pipeline"
)

// Factory 根据配置构建 AI 提供方，实现管道的 AIFactory 契约。
type Factory struct {
	cfg      config.AIConfig
	provider pipeline.AIProvider
}

// NewFactory 创建提供方工厂。
func NewFactory(cfg config.AIConfig) *Factory {
	f := &Factory{cfg: cfg}
	if cfg.Enabled && cfg.APIKey != "" && cfg.BaseURL != "" {
		f.provider = &chatProvider{cfg: cfg, client: &http.Client{}}
	}
	return f
}

// Provider 返回当前可用的提供方；AI 关闭或未配置时返回 nil。
func (f *Factory) Provider() pipeline.AIProvider {
	if f.provider == nil {
		return nil
	}
	return f.provider
}

// chatProvider 通过 OpenAI 兼容的 chat completions 接口提取文件元数据。
type chatProvider struct {
	cfg    config.AIConfig
	client *http.Client
}

func (p *chatProvider) Name() string {
	if p.cfg.Provider != "" {
		return p.cfg.Provider
	}
	return "openai"
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extractionPayload 是要求模型输出的 JSON 结构。
type extractionPayload struct {
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Tags        []string               `json:"tags"`
	Fields      map[string]interface{} `json:"fields"`
	Confidence  float64                `json:"confidence"`
}

const systemPrompt = `你是一个文件元数据提取助手。根据给出的文件名、MIME 类型、大小和文本内容，` +
	`输出一个 JSON 对象，字段为 category（单个分类词）、description（一句话描述）、` +
	`tags（关键词数组）、fields（其他键值对）、confidence（0 到 1 的置信度）。只输出 JSON，不要其他文本。`

// Extract 调用模型提取元数据。模型给不出可解析结论时返回 Success=false 的软失败。
func (p *chatProvider) Extract(ctx context.Context, req pipeline.ExtractionRequest) (*pipeline.Extraction, error) {
	content := req.Content
	userPrompt := fmt.Sprintf("文件名: %s\nMIME 类型: %s\n大小: %d 字节\n文本内容:\n%s",
		req.FileName, req.MimeType, req.Size, content)

	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if p.cfg.Temperature != 0 {
		t := p.cfg.Temperature
		reqBody.Temperature = &t
	}
	if p.cfg.MaxTokens != 0 {
		m := p.cfg.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return &pipeline.Extraction{Success: false, Error: "模型未返回任何结果"}, nil
	}

	payload, err := parsePayload(chat.Choices[0].Message.Content)
	if err != nil {
		// 模型输出无法解析属于软失败，不作为错误上抛
		return &pipeline.Extraction{Success: false, Error: fmt.Sprintf("模型输出无法解析: %v", err)}, nil
	}

	return &pipeline.Extraction{
		Success:     true,
		Category:    payload.Category,
		Description: payload.Description,
		Tags:        payload.Tags,
		Fields:      payload.Fields,
		Confidence:  payload.Confidence,
	}, nil
}

// parsePayload 从模型输出中解析 JSON，容忍 markdown 代码块包裹。
func parsePayload(content string) (*extractionPayload, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
