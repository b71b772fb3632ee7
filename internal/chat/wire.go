package chat

import (
	"encoding/json"
	"time"

	"livecard-chat/internal/sse"
)

// StreamStatus 下游wire事件的流状态
type StreamStatus string

const (
	StreamStart   StreamStatus = "start"
	StreamDelta   StreamStatus = "delta"
	StreamDone    StreamStatus = "done"
	StreamError   StreamStatus = "error"
	StreamDefault StreamStatus = "default"
)

// WireEvent 发给浏览器端SSE消费者的简化事件，
// 与上游协议的事件模型相互独立。
type WireEvent struct {
	MessageID      string       `json:"message_id"`
	MessageType    string       `json:"message_type"`
	StreamStatus   StreamStatus `json:"stream_status"`
	Role           string       `json:"role"`
	MessageContent string       `json:"message_content"`
	MessageImages  []string     `json:"message_images"`
	Delta          string       `json:"delta"`
	CreatedAt      string       `json:"created_at"`
}

// Format 渲染为下游SSE数据帧
func (e WireEvent) Format() []byte {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return sse.FormatData(payload)
}

func wireTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newWireEvent(messageID string, status StreamStatus, role string) WireEvent {
	return WireEvent{
		MessageID:     messageID,
		MessageType:   "text",
		StreamStatus:  status,
		Role:          role,
		MessageImages: []string{},
		CreatedAt:     wireTimestamp(),
	}
}

// startEvent 把用户自己的输入回显给客户端
func startEvent(messageID, prompt string) WireEvent {
	event := newWireEvent(messageID, StreamStart, "user")
	event.MessageContent = prompt
	return event
}

func deltaEvent(messageID, delta string) WireEvent {
	event := newWireEvent(messageID, StreamDelta, "assistant")
	event.Delta = delta
	return event
}

func doneEvent(messageID, text string) WireEvent {
	event := newWireEvent(messageID, StreamDone, "assistant")
	event.MessageContent = text
	return event
}

func errorEvent(message string) WireEvent {
	event := newWireEvent("", StreamError, "assistant")
	event.MessageType = "error"
	event.MessageContent = message
	return event
}

// historyEvent 把已持久化的消息映射为wire形式
func historyEvent(id, role, text, createdAt string) WireEvent {
	event := newWireEvent(id, StreamDefault, role)
	event.MessageContent = text
	event.CreatedAt = createdAt
	return event
}
