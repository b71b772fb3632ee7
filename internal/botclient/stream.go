package botclient

import (
	"context"
	"errors"
	"io"
	"net"

	"livecard-chat/internal/logger"
	"livecard-chat/internal/sse"
	"livecard-chat/internal/streaming"

	"github.com/sirupsen/logrus"
)

// EventStream 把 SSE 字节流惰性解析为类型化事件序列。
//
// Single-pass and single-consumer: events are produced only when Next is
// called, so the upstream read never gets ahead of the consumer. No internal
// goroutines are involved.
type EventStream struct {
	body   io.ReadCloser
	parser *sse.Parser
	buf    []byte

	frames   []sse.Frame
	response *streaming.Response
	logger   *logger.Logger

	// pendingFailure is delivered on the next call to Next, after which the
	// sequence ends. At most one failure event per stream.
	pendingFailure *streaming.ResponseFailed
	done           bool
}

// NewEventStream wraps an already-open text/event-stream body.
func NewEventStream(body io.ReadCloser, log *logger.Logger) *EventStream {
	return &EventStream{
		body:   body,
		parser: sse.NewParser(),
		buf:    make([]byte, 4096),
		logger: log,
	}
}

// failedEventStream 构造一个只交付单个合成失败事件的序列
func failedEventStream(message string, log *logger.Logger) *EventStream {
	failure := streaming.NewResponseFailed(message)
	return &EventStream{
		logger:         log,
		pendingFailure: &failure,
	}
}

// Next returns the next decoded event. The sequence ends with io.EOF after a
// "done" frame, a normal upstream close, or a synthetic response.failed
// event. A ProtocolViolationError from the aggregator is returned as an
// error and also ends the sequence.
func (s *EventStream) Next() (streaming.Event, error) {
	for {
		if s.pendingFailure != nil {
			failure := *s.pendingFailure
			s.pendingFailure = nil
			s.finish()
			return failure, nil
		}

		if s.done {
			return nil, io.EOF
		}

		if len(s.frames) > 0 {
			frame := s.frames[0]
			s.frames = s.frames[1:]

			switch frame.Event {
			case "ping":
				// 保持连接活跃，无需处理
				continue
			case "done":
				s.finish()
				return nil, io.EOF
			case "respond":
				event, err := s.decodeAndAggregate(frame)
				if err != nil {
					return nil, err
				}
				if event == nil {
					continue
				}
				return event, nil
			default:
				s.logger.Debug("ignoring unrecognized frame event", logrus.Fields{"event": frame.Event})
				continue
			}
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.frames = append(s.frames, s.parser.Feed(s.buf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(s.frames) > 0 {
					continue
				}
				s.finish()
				return nil, io.EOF
			}
			message := "读取AI服务响应失败: " + err.Error()
			if isTimeout(err) {
				message = "读取AI服务响应超时"
			}
			s.logger.Error("upstream stream read failed", err)
			failure := streaming.NewResponseFailed(message)
			s.pendingFailure = &failure
		}
	}
}

// decodeAndAggregate 解码 respond 帧并合入物化视图。
// 解码失败转换为合成失败事件；聚合违例作为错误向上传递。
func (s *EventStream) decodeAndAggregate(frame sse.Frame) (streaming.Event, error) {
	event, err := streaming.DecodeEvent([]byte(frame.Data))
	if err != nil {
		s.logger.Error("failed to decode upstream event", err, logrus.Fields{"data": frame.Data})
		failure := streaming.NewResponseFailed("AI服务返回了无法解析的事件: " + err.Error())
		s.pendingFailure = &failure
		return nil, nil
	}

	if s.response == nil {
		response, err := streaming.NewResponse(event)
		if err != nil {
			s.logger.Error("upstream stream violated response protocol", err)
			s.finish()
			return nil, err
		}
		s.response = response
		return event, nil
	}

	if err := s.response.Apply(event); err != nil {
		s.logger.Error("upstream stream violated response protocol", err)
		s.finish()
		return nil, err
	}
	return event, nil
}

// Response returns the materialized view built so far, or nil before the
// response.created event has been seen.
func (s *EventStream) Response() *streaming.Response {
	return s.response
}

func (s *EventStream) finish() {
	s.done = true
	s.closeBody()
}

// Close 释放底层连接；可重复调用
func (s *EventStream) Close() error {
	s.done = true
	return s.closeBody()
}

func (s *EventStream) closeBody() error {
	if s.body == nil {
		return nil
	}
	body := s.body
	s.body = nil
	return body.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
