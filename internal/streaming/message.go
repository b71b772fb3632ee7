package streaming

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MessageTypeChat      MessageType = "chat"
	MessageTypeReasoning MessageType = "reasoning"
	MessageTypeAction    MessageType = "action"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CompletionStatus 消息完成状态
type CompletionStatus string

const (
	CompletionCompleted  CompletionStatus = "completed"
	CompletionFailed     CompletionStatus = "failed"
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionIncomplete CompletionStatus = "incomplete"
)

// ActionStatus 动作执行状态
type ActionStatus string

const (
	ActionStatusCreated   ActionStatus = "created"
	ActionStatusExecuting ActionStatus = "executing"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// TextContent 文本内容单元
type TextContent struct {
	ContentType string `json:"content_type"`
	Text        string `json:"text"`
}

func NewTextContent(text string) TextContent {
	return TextContent{ContentType: "text", Text: text}
}

// FunctionCallContent 函数调用描述
type FunctionCallContent struct {
	ContentType  string          `json:"content_type"`
	FunctionName string          `json:"function_name"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
}

// Message 是三种消息类型之上的联合类型
type Message interface {
	MessageType() MessageType
}

// ChatMessage 普通聊天消息，由若干文本条目组成
type ChatMessage struct {
	Type   MessageType      `json:"type"`
	Role   Role             `json:"role"`
	Name   string           `json:"name,omitempty"`
	Status CompletionStatus `json:"status"`
	Items  []TextContent    `json:"items"`
}

func (*ChatMessage) MessageType() MessageType { return MessageTypeChat }

// NewChatMessage builds a completed single-item chat message, the form used
// for user input and persisted history.
func NewChatMessage(role Role, text string) *ChatMessage {
	return &ChatMessage{
		Type:   MessageTypeChat,
		Role:   role,
		Status: CompletionCompleted,
		Items:  []TextContent{NewTextContent(text)},
	}
}

// ReasoningMessage 推理消息，维护单个可变的思考文本缓冲
type ReasoningMessage struct {
	Type    MessageType      `json:"type"`
	Role    Role             `json:"role"`
	Name    string           `json:"name,omitempty"`
	Status  CompletionStatus `json:"status"`
	Thought TextContent      `json:"thought"`
}

func (*ReasoningMessage) MessageType() MessageType { return MessageTypeReasoning }

// ActionMessage 工具/动作调用消息
type ActionMessage struct {
	Type               MessageType         `json:"type"`
	Role               Role                `json:"role"`
	Name               string              `json:"name,omitempty"`
	Status             ActionStatus        `json:"status"`
	Action             FunctionCallContent `json:"action"`
	ObservationSummary string              `json:"observation_summary,omitempty"`
	FailureReason      string              `json:"failure_reason,omitempty"`
}

func (*ActionMessage) MessageType() MessageType { return MessageTypeAction }

// Text returns the concatenated text of a chat message's items.
func (m *ChatMessage) Text() string {
	var text string
	for _, item := range m.Items {
		text += item.Text
	}
	return text
}

// DecodeMessage 按 type 判别符解码消息
func DecodeMessage(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid message payload: %w", err)
	}

	switch head.Type {
	case MessageTypeChat:
		var m ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case MessageTypeReasoning:
		var m ReasoningMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case MessageTypeAction:
		var m ActionMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", head.Type)
	}
}
