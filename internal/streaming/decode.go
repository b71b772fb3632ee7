package streaming

import (
	"encoding/json"
	"fmt"
)

type eventDecoder func([]byte) (Event, error)

func decodeAs[E Event](data []byte) (Event, error) {
	var event E
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return event, nil
}

var eventDecoders = map[EventType]eventDecoder{
	EventResponseCreated:    decodeAs[ResponseCreated],
	EventResponseInProgress: decodeAs[ResponseInProgress],
	EventResponseCompleted:  decodeAs[ResponseCompleted],
	EventResponseFailed:     decodeAs[ResponseFailed],
	EventResponseAborted:    decodeAs[ResponseAborted],

	EventActionMessageAdded:    decodeAs[ActionMessageAdded],
	EventActionMessageDone:     decodeAs[ActionMessageDone],
	EventChatMessageAdded:      decodeAs[ChatMessageAdded],
	EventChatMessageDone:       decodeAs[ChatMessageDone],
	EventReasoningMessageAdded: decodeAs[ReasoningMessageAdded],
	EventReasoningMessageDone:  decodeAs[ReasoningMessageDone],

	EventActionCreated:   decodeAs[ActionCreated],
	EventActionExecuting: decodeAs[ActionExecuting],
	EventActionCompleted: decodeAs[ActionCompleted],
	EventActionFailed:    decodeAs[ActionFailed],

	EventChatMessageItemAdded: decodeAs[ChatMessageItemAdded],
	EventChatMessageItemDone:  decodeAs[ChatMessageItemDone],
	EventOutputTextDelta:      decodeAs[OutputTextDelta],
	EventOutputTextDone:       decodeAs[OutputTextDone],
	EventThoughtDelta:         decodeAs[ThoughtDelta],
	EventThoughtDone:          decodeAs[ThoughtDone],
}

// DecodeEvent 按 event_type 判别符把 JSON 负载解码为对应的事件变体
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		EventType EventType `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	decode, ok := eventDecoders[head.EventType]
	if !ok {
		return nil, &UnknownEventTypeError{EventType: head.EventType}
	}

	event, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q event: %w", string(head.EventType), err)
	}
	return event, nil
}

// EncodeEvent 编码为线上 JSON 表示，与 DecodeEvent 互逆
func EncodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}
