package streaming

import (
	"time"

	"github.com/google/uuid"
)

// ResponseStatus 响应整体状态
type ResponseStatus string

const (
	StatusCreated    ResponseStatus = "created"
	StatusInProgress ResponseStatus = "in_progress"
	StatusCompleted  ResponseStatus = "completed"
	StatusFailed     ResponseStatus = "failed"
	StatusAborted    ResponseStatus = "aborted"
)

// itemRef addresses a text item by message slot and item slot so lookups
// survive slice reallocation.
type itemRef struct {
	message int
	item    int
}

// Response 缓存流式响应事件的容器。
//
// A Response is owned by exactly one streaming call and must not be shared
// across goroutines. Status transitions are monotonic:
// created → in_progress → {completed|failed|aborted}, terminal at most once.
type Response struct {
	ID        uuid.UUID
	CreatedAt time.Time

	status   ResponseStatus
	events   []Event
	messages []Message

	messageIndex map[uuid.UUID]int
	itemIndex    map[uuid.UUID]itemRef

	messagesAdded int
	messagesDone  int
}

// NewResponse 由 response.created 事件初始化响应，其余事件类型一律拒绝
func NewResponse(event Event) (*Response, error) {
	created, ok := event.(ResponseCreated)
	if !ok {
		return nil, violation(event.Type(), "only a response.created event can initialize a response")
	}

	return &Response{
		ID:           created.Response.ID,
		CreatedAt:    created.Response.CreatedAt,
		status:       StatusCreated,
		events:       []Event{created},
		messageIndex: make(map[uuid.UUID]int),
		itemIndex:    make(map[uuid.UUID]itemRef),
	}, nil
}

// Status returns the current response status.
func (r *Response) Status() ResponseStatus { return r.status }

// Events returns the ordered log of every event applied so far.
func (r *Response) Events() []Event { return r.events }

// Messages returns the ordered message list of the materialized view.
func (r *Response) Messages() []Message { return r.messages }

// Message looks up a message by its identifier.
func (r *Response) Message(id uuid.UUID) (Message, bool) {
	idx, ok := r.messageIndex[id]
	if !ok {
		return nil, false
	}
	return r.messages[idx], true
}

// Item looks up a chat message text item by its identifier. The returned
// pointer is valid until the next Apply call.
func (r *Response) Item(id uuid.UUID) (*TextContent, bool) {
	ref, ok := r.itemIndex[id]
	if !ok {
		return nil, false
	}
	chat, ok := r.messages[ref.message].(*ChatMessage)
	if !ok {
		return nil, false
	}
	return &chat.Items[ref.item], true
}

func (r *Response) terminal() bool {
	switch r.status {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Apply 按转移表把事件合入物化视图，任何不变量被破坏时返回 ProtocolViolationError，
// 且不改变已有状态。
func (r *Response) Apply(event Event) error {
	switch ev := event.(type) {
	case ResponseCreated:
		return violation(ev.Type(), "response.created may only initialize a response, not be replayed into one")

	case ResponseInProgress:
		if r.status != StatusCreated {
			return violation(ev.Type(), "response is not in created state (current: %s)", r.status)
		}
		r.status = StatusInProgress

	case ResponseCompleted:
		if r.terminal() {
			return violation(ev.Type(), "response already reached terminal status %s", r.status)
		}
		r.status = StatusCompleted

	case ResponseFailed:
		if r.terminal() {
			return violation(ev.Type(), "response already reached terminal status %s", r.status)
		}
		r.status = StatusFailed

	case ResponseAborted:
		if r.terminal() {
			return violation(ev.Type(), "response already reached terminal status %s", r.status)
		}
		r.status = StatusAborted

	case ChatMessageAdded:
		message := ev.Message.Message
		message.Status = CompletionInProgress
		if err := r.addMessage(ev.Type(), ev.Message.ID, &message); err != nil {
			return err
		}

	case ReasoningMessageAdded:
		message := ev.Message.Message
		message.Status = CompletionInProgress
		if err := r.addMessage(ev.Type(), ev.Message.ID, &message); err != nil {
			return err
		}

	case ActionMessageAdded:
		// 动作消息的执行状态按事件携带的值保留
		message := ev.Message.Message
		if err := r.addMessage(ev.Type(), ev.Message.ID, &message); err != nil {
			return err
		}

	case ChatMessageDone:
		chat, err := r.chatMessage(ev.Type(), ev.Message.ID)
		if err != nil {
			return err
		}
		if err := r.countDone(ev.Type()); err != nil {
			return err
		}
		chat.Status = finishStatus(ev.FinishReason)

	case ReasoningMessageDone:
		reasoning, err := r.reasoningMessage(ev.Type(), ev.Message.ID)
		if err != nil {
			return err
		}
		if err := r.countDone(ev.Type()); err != nil {
			return err
		}
		reasoning.Status = finishStatus(ev.FinishReason)

	case ActionMessageDone:
		// 动作消息的终态由 action.completed/failed 事件记录，这里只计数
		if err := r.countDone(ev.Type()); err != nil {
			return err
		}

	case ActionCreated:
		action, err := r.actionMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		action.Status = ActionStatusCreated

	case ActionExecuting:
		action, err := r.actionMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		action.Status = ActionStatusExecuting

	case ActionCompleted:
		action, err := r.actionMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		action.Status = ActionStatusCompleted
		action.ObservationSummary = ev.ObservationSummary

	case ActionFailed:
		action, err := r.actionMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		action.Status = ActionStatusFailed
		action.FailureReason = ev.FailureReason

	case ChatMessageItemAdded:
		chat, err := r.chatMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		if _, exists := r.itemIndex[ev.Item.ID]; exists {
			return violation(ev.Type(), "duplicate item id %s", ev.Item.ID)
		}
		chat.Items = append(chat.Items, ev.Item.Content)
		r.itemIndex[ev.Item.ID] = itemRef{
			message: r.messageIndex[ev.MessageID],
			item:    len(chat.Items) - 1,
		}

	case ChatMessageItemDone:
		if _, ok := r.itemIndex[ev.Item.ID]; !ok {
			return violation(ev.Type(), "unknown item id %s", ev.Item.ID)
		}

	case OutputTextDelta:
		item, ok := r.Item(ev.ItemID)
		if !ok {
			return violation(ev.Type(), "unknown item id %s", ev.ItemID)
		}
		item.Text += ev.Delta

	case OutputTextDone:
		// done 事件携带权威的最终文本，覆盖此前累积的增量
		item, ok := r.Item(ev.ItemID)
		if !ok {
			return violation(ev.Type(), "unknown item id %s", ev.ItemID)
		}
		item.Text = ev.Text

	case ThoughtDelta:
		reasoning, err := r.reasoningMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		reasoning.Thought.Text += ev.Delta

	case ThoughtDone:
		reasoning, err := r.reasoningMessage(ev.Type(), ev.MessageID)
		if err != nil {
			return err
		}
		reasoning.Thought.Text = ev.Thought

	default:
		return violation(event.Type(), "event type is not part of the aggregation transition table")
	}

	r.events = append(r.events, event)
	return nil
}

func (r *Response) addMessage(eventType EventType, id uuid.UUID, message Message) error {
	if _, exists := r.messageIndex[id]; exists {
		return violation(eventType, "duplicate message id %s", id)
	}
	r.messages = append(r.messages, message)
	r.messageIndex[id] = len(r.messages) - 1
	r.messagesAdded++
	return nil
}

// countDone enforces done_count <= added_count across the event log.
func (r *Response) countDone(eventType EventType) error {
	if r.messagesDone >= r.messagesAdded {
		return violation(eventType, "message done events (%d) would exceed added events (%d)", r.messagesDone+1, r.messagesAdded)
	}
	r.messagesDone++
	return nil
}

func (r *Response) chatMessage(eventType EventType, id uuid.UUID) (*ChatMessage, error) {
	message, ok := r.Message(id)
	if !ok {
		return nil, violation(eventType, "unknown message id %s", id)
	}
	chat, ok := message.(*ChatMessage)
	if !ok {
		return nil, violation(eventType, "message %s is not a chat message", id)
	}
	return chat, nil
}

func (r *Response) reasoningMessage(eventType EventType, id uuid.UUID) (*ReasoningMessage, error) {
	message, ok := r.Message(id)
	if !ok {
		return nil, violation(eventType, "unknown message id %s", id)
	}
	reasoning, ok := message.(*ReasoningMessage)
	if !ok {
		return nil, violation(eventType, "message %s is not a reasoning message", id)
	}
	return reasoning, nil
}

func (r *Response) actionMessage(eventType EventType, id uuid.UUID) (*ActionMessage, error) {
	message, ok := r.Message(id)
	if !ok {
		return nil, violation(eventType, "unknown message id %s", id)
	}
	action, ok := message.(*ActionMessage)
	if !ok {
		return nil, violation(eventType, "message %s is not an action message", id)
	}
	return action, nil
}

// finishStatus maps a finish reason to the resulting completion status.
// "length" means the model hit its output limit, leaving the message incomplete.
func finishStatus(finishReason string) CompletionStatus {
	if finishReason == "length" {
		return CompletionIncomplete
	}
	return CompletionCompleted
}
