package streaming

import "fmt"

// UnknownEventTypeError 事件判别符不匹配任何已知变体
type UnknownEventTypeError struct {
	EventType EventType
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type: %q", string(e.EventType))
}

// ProtocolViolationError 事件序列违反了响应聚合的不变量，
// 表明上游服务的流本身已损坏。
type ProtocolViolationError struct {
	EventType EventType
	Reason    string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation on %q: %s", string(e.EventType), e.Reason)
}

func violation(eventType EventType, format string, args ...any) *ProtocolViolationError {
	return &ProtocolViolationError{
		EventType: eventType,
		Reason:    fmt.Sprintf(format, args...),
	}
}
