package sse

import (
	"bytes"
	"strings"
)

// Frame 表示一个完整的 SSE 事件帧
type Frame struct {
	ID    string
	Event string
	Data  string
}

// Parser 处理 Server-Sent Events 流的增量解析
//
// Feed may be called with arbitrary byte chunks; a line or multi-byte
// character split across chunk boundaries is carried over in an internal
// buffer until its terminating newline arrives.
type Parser struct {
	partial []byte   // unterminated trailing line from the previous chunk
	lines   []string // buffered field lines of the frame currently being read
}

// NewParser 创建新的 SSE 解析器
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one chunk of the byte stream and returns every frame that
// was completed by it. Parsing never fails: malformed field lines are kept
// as raw strings for the caller to validate.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.partial = append(p.partial, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(p.partial[:idx]), "\r")
		p.partial = p.partial[idx+1:]

		if line == "" {
			// 空行表示事件结束
			if len(p.lines) > 0 {
				frames = append(frames, parseFrame(p.lines))
				p.lines = nil
			}
			continue
		}

		// 跳过注释行
		if strings.HasPrefix(line, ":") {
			continue
		}

		p.lines = append(p.lines, line)
	}

	return frames
}

// parseFrame 将缓冲的字段行组装为一个帧
func parseFrame(lines []string) Frame {
	frame := Frame{
		Event: "message", // 默认事件类型是message
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "id:"):
			frame.ID = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "event:"):
			frame.Event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if frame.Data != "" {
				frame.Data += "\n"
			}
			frame.Data += strings.TrimSpace(line[5:])
		}
	}

	return frame
}

// FormatData 将负载组装成下游 SSE 数据帧
func FormatData(payload []byte) []byte {
	var buffer bytes.Buffer
	buffer.WriteString("data: ")
	buffer.Write(payload)
	buffer.WriteString("\n\n")
	return buffer.Bytes()
}
