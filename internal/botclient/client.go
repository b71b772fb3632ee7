package botclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"livecard-chat/internal/logger"
	"livecard-chat/internal/streaming"

	"github.com/sirupsen/logrus"
)

// completionAttempts 非流式请求的最大尝试次数；流式请求一旦开始绝不重试
const completionAttempts = 3

// Timeouts 上游 HTTP 客户端超时配置
type Timeouts struct {
	TLSHandshake   time.Duration
	ResponseHeader time.Duration
	IdleConnection time.Duration
	OverallRequest time.Duration // 仅用于非流式请求
}

// Client 与 AI 服务的 SSE 聊天补全接口通信
type Client struct {
	url          string
	streamClient *http.Client
	client       *http.Client
	retryDelay   time.Duration
	logger       *logger.Logger
}

// New 创建上游客户端。流式请求使用不设整体超时的客户端，
// 以支持长时间运行的 SSE 响应。
func New(url string, timeouts Timeouts, retryDelay time.Duration, log *logger.Logger) *Client {
	streamTransport := &http.Transport{
		TLSHandshakeTimeout:   timeouts.TLSHandshake,
		ResponseHeaderTimeout: timeouts.ResponseHeader,
		IdleConnTimeout:       timeouts.IdleConnection,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
	}

	transport := &http.Transport{
		TLSHandshakeTimeout:   timeouts.TLSHandshake,
		ResponseHeaderTimeout: timeouts.ResponseHeader,
		IdleConnTimeout:       timeouts.IdleConnection,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
	}

	return &Client{
		url: url,
		streamClient: &http.Client{
			Transport: streamTransport,
			// No overall timeout for streaming responses
		},
		client: &http.Client{
			Transport: transport,
			Timeout:   timeouts.OverallRequest,
		},
		retryDelay: retryDelay,
		logger:     log,
	}
}

// ChatRequest 聊天补全请求体
type ChatRequest struct {
	ChatID    string `json:"chat_id"`
	SessionID string `json:"session_id"`
	BotID     string `json:"bot_id"`

	BotName         string `json:"bot_name,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	FocusedCategory string `json:"focused_category,omitempty"`
	LiveCardTopic   string `json:"live_card_topic,omitempty"`
	LiveCardContent string `json:"live_card_content,omitempty"`

	ChatHistory []*streaming.ChatMessage `json:"chat_history,omitempty"`
	UserInput   *streaming.ChatMessage   `json:"user_input,omitempty"`
	Messages    []*streaming.ChatMessage `json:"messages,omitempty"`

	MaxChatHistorySize int  `json:"max_chat_history_size,omitempty"`
	Stream             bool `json:"stream"`
}

// Stream 发起流式聊天补全调用并返回事件序列。
//
// 传输层失败（连接错误、超时、非 2xx 状态）不会作为 error 返回，
// 而是转换为序列中唯一一个合成的 response.failed 事件，之后序列结束。
func (c *Client) Stream(ctx context.Context, req ChatRequest) (*EventStream, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	c.logger.Debug("opening upstream chat stream", logrus.Fields{
		"url":     c.url,
		"chat_id": req.ChatID,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		message := "连接AI服务失败: " + err.Error()
		if isTimeout(err) {
			message = "连接到AI服务超时"
		}
		c.logger.Error("upstream chat stream failed to open", err, logrus.Fields{"chat_id": req.ChatID})
		return failedEventStream(message, c.logger), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		c.logger.Error("upstream chat stream returned error status", nil, logrus.Fields{
			"chat_id":     req.ChatID,
			"status_code": resp.StatusCode,
		})
		return failedEventStream(fmt.Sprintf("HTTP错误: %d", resp.StatusCode), c.logger), nil
	}

	return NewEventStream(resp.Body, c.logger), nil
}

// Complete 非流式聊天补全，最多尝试3次，每次间隔 retryDelay。
// 仅供不需要增量交付的调用方使用。
func (c *Client) Complete(ctx context.Context, req ChatRequest) ([]streaming.Message, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= completionAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("completion attempt failed, retrying", logrus.Fields{
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		messages, err := c.completeOnce(ctx, body)
		if err == nil {
			return messages, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("completion failed after %d attempts: %w", completionAttempts, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, body []byte) ([]streaming.Message, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("AI service returned HTTP %d", resp.StatusCode)
	}

	var rawMessages []json.RawMessage
	if err := json.Unmarshal(respBody, &rawMessages); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	messages := make([]streaming.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		message, err := streaming.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}
