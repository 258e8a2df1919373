// Package knowledge 封装对远端知识库智能体的查询。
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config 远端知识库连接配置。AgentID 为空表示未接入知识库。
type Config struct {
	BaseURL string
	Token   string
	AgentID string
	Timeout time.Duration
}

// Client 通过 HTTP 调用挂在固定 agent 下的知识检索接口。
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient 创建知识库客户端。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled 报告客户端是否配置了可用的 agent。
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != "" && c.cfg.AgentID != ""
}

type queryRequest struct {
	Messages []queryMessage `json:"messages"`
}

type queryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryResponse struct {
	Messages []struct {
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	} `json:"messages"`
}

// Query 把问题发给远端 agent 并取回最后一条助手消息。
func (c *Client) Query(ctx context.Context, question string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("knowledge agent not configured")
	}

	body, err := json.Marshal(queryRequest{
		Messages: []queryMessage{{Role: "user", Content: question}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}

	url := fmt.Sprintf("%s/v1/agents/%s/messages", c.cfg.BaseURL, c.cfg.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("knowledge agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("knowledge agent returned %d: %s", resp.StatusCode, snippet)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode knowledge response: %w", err)
	}

	// 取最后一条助手可读消息，中间的推理与工具调用消息跳过。
	for i := len(decoded.Messages) - 1; i >= 0; i-- {
		msg := decoded.Messages[i]
		if msg.MessageType == "assistant_message" && msg.Content != "" {
			return msg.Content, nil
		}
	}
	return "", fmt.Errorf("knowledge agent returned no assistant message")
}
