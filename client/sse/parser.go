package sse

import (
	"bytes"
	"log/slog"
	"strings"
)

const (
	doneSentinel = "[DONE]"
	doneEvent    = "done"
	bom          = "\uFEFF"
)

// Parser incrementally extracts events from a growing response buffer.
//
// The caller owns the buffer and passes all bytes received so far on
// every call. The parser keeps a cursor to the first byte it has not
// consumed, so a frame is emitted once and only once it is terminated
// by a blank line. A Parser is not safe for concurrent use.
type Parser struct {
	cursor int
	done   bool
	logger *slog.Logger
}

// NewParser returns a Parser positioned at the start of the stream.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Cursor returns the offset of the first unconsumed byte.
func (p *Parser) Cursor() int { return p.cursor }

// Done reports whether a termination sentinel was seen or the stream
// was flushed. A done parser emits nothing further.
func (p *Parser) Done() bool { return p.done }

// Parse returns the complete frames found in buf past the cursor. A
// trailing frame without its blank line is left for a later call.
func (p *Parser) Parse(buf []byte) []Event {
	return p.scan(buf, false)
}

// Flush parses buf treating its end as a frame boundary, then marks
// the parser done. It is called once the stream has ended.
func (p *Parser) Flush(buf []byte) []Event {
	events := p.scan(buf, true)
	p.done = true
	return events
}

// frame accumulates the fields of the frame being scanned.
type frame struct {
	open  bool
	kind  Kind
	value string
	data  []string
	id    string
	retry string
}

func (f *frame) reset() { *f = frame{} }

func (f *frame) add(field, value string) {
	kind := kindOf(field)

	if !f.open {
		f.open = true
		f.kind = kind
		f.value = value
	}

	switch kind {
	case KindData:
		f.data = append(f.data, value)
	case KindID:
		f.id = value
	case KindRetry:
		f.retry = value
	}
}

// terminal reports whether the frame is an end-of-stream sentinel.
func (f *frame) terminal() bool {
	if f.value == doneSentinel {
		return true
	}
	if f.kind == KindEvent && strings.EqualFold(f.value, doneEvent) {
		return true
	}
	for _, d := range f.data {
		if d == doneSentinel {
			return true
		}
	}
	return false
}

func (f *frame) event() Event {
	ev := Event{
		Kind:  f.kind,
		Value: token(f.value),
		ID:    f.id,
		Retry: f.retry,
	}

	switch {
	case f.kind == KindData && len(f.data) > 1:
		ev.Data = token(strings.Join(f.data, "\n"))
	case f.kind != KindData && len(f.data) > 0:
		ev.Data = token(strings.Join(f.data, "\n"))
	}

	return ev
}

func (p *Parser) scan(buf []byte, final bool) []Event {
	if p.done {
		return nil
	}

	if p.cursor < 0 || p.cursor > len(buf) {
		p.logger.Warn("sse cursor out of range, rescanning", "cursor", p.cursor, "length", len(buf))
		p.cursor = 0
	}

	var (
		events []Event
		f      frame
		pos    = p.cursor
	)

	for {
		if p.done {
			return events
		}

		var line []byte
		idx := bytes.IndexByte(buf[pos:], '\n')
		switch {
		case idx >= 0:
			line = buf[pos : pos+idx]
			pos += idx + 1

		case final && pos < len(buf):
			line = buf[pos:]
			pos = len(buf)

		default:
			// Partial frame: leave the cursor at its first line.
			if final {
				events = p.emit(events, &f)
				p.cursor = pos
			}
			return events
		}

		text := strings.TrimPrefix(strings.TrimSuffix(string(line), "\r"), bom)
		if text == "" {
			events = p.emit(events, &f)
			p.cursor = pos
			continue
		}

		field, value, ok := strings.Cut(text, ":")
		if !ok {
			continue
		}

		value = strings.TrimPrefix(value, " ")
		value = strings.TrimPrefix(value, bom)
		f.add(field, value)
	}
}

// emit closes the current frame, appending it to events unless it is
// empty or terminal.
func (p *Parser) emit(events []Event, f *frame) []Event {
	defer f.reset()

	if !f.open {
		return events
	}

	if f.terminal() {
		p.done = true
		return events
	}

	return append(events, f.event())
}
