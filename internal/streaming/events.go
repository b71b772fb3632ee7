package streaming

import (
	"time"

	"github.com/google/uuid"
)

// EventType 标识流式响应事件的类型
type EventType string

const (
	EventResponseCreated    EventType = "response.created"
	EventResponseInProgress EventType = "response.in_progress"
	EventResponseCompleted  EventType = "response.completed"
	EventResponseFailed     EventType = "response.failed"
	EventResponseAborted    EventType = "response.aborted"

	EventActionMessageAdded    EventType = "response.action_message.added"
	EventActionMessageDone     EventType = "response.action_message.done"
	EventChatMessageAdded      EventType = "response.chat_message.added"
	EventChatMessageDone       EventType = "response.chat_message.done"
	EventReasoningMessageAdded EventType = "response.reasoning_message.added"
	EventReasoningMessageDone  EventType = "response.reasoning_message.done"

	EventActionCreated   EventType = "response.action_message.action.created"
	EventActionExecuting EventType = "response.action_message.action.executing"
	EventActionCompleted EventType = "response.action_message.action.completed"
	EventActionFailed    EventType = "response.action_message.action.failed"

	EventChatMessageItemAdded EventType = "response.chat_message.item.added"
	EventChatMessageItemDone  EventType = "response.chat_message.item.done"
	EventOutputTextDelta      EventType = "response.chat_message.item.output_text.delta"
	EventOutputTextDone       EventType = "response.chat_message.item.output_text.done"
	EventThoughtDelta         EventType = "response.reasoning_message.thought.delta"
	EventThoughtDone          EventType = "response.reasoning_message.thought.done"
)

// Event 是所有流式响应事件的联合类型。
// 每个变体都携带与其线上表示一致的 event_type 字段。
type Event interface {
	Type() EventType
}

// ResponseBody 响应级别事件的公共负载
type ResponseBody struct {
	ID        uuid.UUID      `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CompletionUsage token 用量统计
type CompletionUsage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
}

// 响应级别事件

type ResponseCreated struct {
	EventType EventType    `json:"event_type"`
	Response  ResponseBody `json:"response"`
}

func (ResponseCreated) Type() EventType { return EventResponseCreated }

type ResponseInProgress struct {
	EventType EventType    `json:"event_type"`
	Response  ResponseBody `json:"response"`
}

func (ResponseInProgress) Type() EventType { return EventResponseInProgress }

type ResponseCompleted struct {
	EventType EventType    `json:"event_type"`
	Response  ResponseBody `json:"response"`
}

func (ResponseCompleted) Type() EventType { return EventResponseCompleted }

type ResponseFailed struct {
	EventType EventType    `json:"event_type"`
	Response  ResponseBody `json:"response"`
}

func (ResponseFailed) Type() EventType { return EventResponseFailed }

// NewResponseFailed 构造合成失败事件，用于把传输层错误转换为协议事件
func NewResponseFailed(errMsg string) ResponseFailed {
	return ResponseFailed{
		EventType: EventResponseFailed,
		Response: ResponseBody{
			ID:        uuid.New(),
			CreatedAt: time.Now().UTC(),
			Error:     errMsg,
		},
	}
}

type ResponseAborted struct {
	EventType EventType    `json:"event_type"`
	Response  ResponseBody `json:"response"`
}

func (ResponseAborted) Type() EventType { return EventResponseAborted }

// 消息级别事件

// ChatMessageBody "added"/"done" 事件携带的完整消息负载
type ChatMessageBody struct {
	ID        uuid.UUID   `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Message   ChatMessage `json:"message"`
}

type ReasoningMessageBody struct {
	ID        uuid.UUID        `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Message   ReasoningMessage `json:"message"`
}

type ActionMessageBody struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Message   ActionMessage `json:"message"`
}

type ChatMessageAdded struct {
	ResponseID   uuid.UUID       `json:"response_id"`
	EventType    EventType       `json:"event_type"`
	MessageIndex int             `json:"message_index"`
	MessageType  MessageType     `json:"message_type"`
	Message      ChatMessageBody `json:"message"`
}

func (ChatMessageAdded) Type() EventType { return EventChatMessageAdded }

type ChatMessageDone struct {
	ResponseID   uuid.UUID        `json:"response_id"`
	EventType    EventType        `json:"event_type"`
	MessageIndex int              `json:"message_index"`
	MessageType  MessageType      `json:"message_type"`
	Message      ChatMessageBody  `json:"message"`
	FinishReason string           `json:"finish_reason"`
	Usage        *CompletionUsage `json:"usage,omitempty"`
}

func (ChatMessageDone) Type() EventType { return EventChatMessageDone }

type ReasoningMessageAdded struct {
	ResponseID   uuid.UUID            `json:"response_id"`
	EventType    EventType            `json:"event_type"`
	MessageIndex int                  `json:"message_index"`
	MessageType  MessageType          `json:"message_type"`
	Message      ReasoningMessageBody `json:"message"`
}

func (ReasoningMessageAdded) Type() EventType { return EventReasoningMessageAdded }

type ReasoningMessageDone struct {
	ResponseID   uuid.UUID            `json:"response_id"`
	EventType    EventType            `json:"event_type"`
	MessageIndex int                  `json:"message_index"`
	MessageType  MessageType          `json:"message_type"`
	Message      ReasoningMessageBody `json:"message"`
	FinishReason string               `json:"finish_reason"`
	Usage        *CompletionUsage     `json:"usage,omitempty"`
}

func (ReasoningMessageDone) Type() EventType { return EventReasoningMessageDone }

type ActionMessageAdded struct {
	ResponseID   uuid.UUID         `json:"response_id"`
	EventType    EventType         `json:"event_type"`
	MessageIndex int               `json:"message_index"`
	MessageType  MessageType       `json:"message_type"`
	Message      ActionMessageBody `json:"message"`
}

func (ActionMessageAdded) Type() EventType { return EventActionMessageAdded }

type ActionMessageDone struct {
	ResponseID   uuid.UUID         `json:"response_id"`
	EventType    EventType         `json:"event_type"`
	MessageIndex int               `json:"message_index"`
	MessageType  MessageType       `json:"message_type"`
	Message      ActionMessageBody `json:"message"`
	Usage        *CompletionUsage  `json:"usage,omitempty"`
}

func (ActionMessageDone) Type() EventType { return EventActionMessageDone }

// 动作内容级别事件

type ActionCreated struct {
	EventType EventType `json:"event_type"`
	MessageID uuid.UUID `json:"message_id"`
}

func (ActionCreated) Type() EventType { return EventActionCreated }

type ActionExecuting struct {
	EventType EventType `json:"event_type"`
	MessageID uuid.UUID `json:"message_id"`
}

func (ActionExecuting) Type() EventType { return EventActionExecuting }

type ActionCompleted struct {
	EventType          EventType `json:"event_type"`
	MessageID          uuid.UUID `json:"message_id"`
	ObservationSummary string    `json:"observation_summary,omitempty"`
}

func (ActionCompleted) Type() EventType { return EventActionCompleted }

type ActionFailed struct {
	EventType     EventType `json:"event_type"`
	MessageID     uuid.UUID `json:"message_id"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

func (ActionFailed) Type() EventType { return EventActionFailed }

// Chat消息内容级别事件

type ChatMessageItemBody struct {
	ID      uuid.UUID   `json:"id"`
	Content TextContent `json:"content"`
}

type ChatMessageItemAdded struct {
	EventType EventType           `json:"event_type"`
	MessageID uuid.UUID           `json:"message_id"`
	ItemIndex int                 `json:"item_index"`
	ItemType  string              `json:"item_type"`
	Item      ChatMessageItemBody `json:"item"`
}

func (ChatMessageItemAdded) Type() EventType { return EventChatMessageItemAdded }

type ChatMessageItemDone struct {
	EventType EventType           `json:"event_type"`
	MessageID uuid.UUID           `json:"message_id"`
	ItemIndex int                 `json:"item_index"`
	ItemType  string              `json:"item_type"`
	Item      ChatMessageItemBody `json:"item"`
}

func (ChatMessageItemDone) Type() EventType { return EventChatMessageItemDone }

type OutputTextDelta struct {
	EventType EventType `json:"event_type"`
	ItemID    uuid.UUID `json:"item_id"`
	Delta     string    `json:"delta"`
}

func (OutputTextDelta) Type() EventType { return EventOutputTextDelta }

type OutputTextDone struct {
	EventType EventType `json:"event_type"`
	ItemID    uuid.UUID `json:"item_id"`
	Text      string    `json:"text"`
}

func (OutputTextDone) Type() EventType { return EventOutputTextDone }

// Reasoning消息内容级别事件

type ThoughtDelta struct {
	EventType EventType `json:"event_type"`
	MessageID uuid.UUID `json:"message_id"`
	Delta     string    `json:"delta"`
}

func (ThoughtDelta) Type() EventType { return EventThoughtDelta }

type ThoughtDone struct {
	EventType EventType `json:"event_type"`
	MessageID uuid.UUID `json:"message_id"`
	Thought   string    `json:"thought"`
}

func (ThoughtDone) Type() EventType { return EventThoughtDone }
