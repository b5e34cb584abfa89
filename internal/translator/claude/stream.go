package claude

import (
	"github.com/tidwall/sjson"

	"github.com/kirogate/kirogate/internal/translator"
)

// blockKind tracks which content block is currently open in the stream.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockTool
)

// streamState drives the messages SSE protocol: message_start, then
// content_block_start/delta/stop per block, then message_delta and
// message_stop exactly once.
type streamState struct {
	id           string
	model        string
	promptTokens int64

	started    bool
	open       blockKind
	blockIndex int
	sawTool    bool
	closed     bool
}

func (*Codec) NewStream(id, model string, promptTokens int64) translator.StreamTranslator {
	return &streamState{id: id, model: model, promptTokens: promptTokens, blockIndex: -1}
}

func event(name, data string) translator.Event {
	return translator.Event{Name: name, Data: []byte(data)}
}

func (s *streamState) start() []translator.Event {
	s.started = true
	msg := `{"type":"message_start","message":{"type":"message","role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`
	msg, _ = sjson.Set(msg, "message.id", s.id)
	msg, _ = sjson.Set(msg, "message.model", s.model)
	msg, _ = sjson.Set(msg, "message.usage.input_tokens", s.promptTokens)
	msg, _ = sjson.Set(msg, "message.usage.output_tokens", 0)
	return []translator.Event{
		event("message_start", msg),
		event("ping", `{"type":"ping"}`),
	}
}

func (s *streamState) closeBlock() []translator.Event {
	if s.open == blockNone {
		return nil
	}
	s.open = blockNone
	data, _ := sjson.Set(`{"type":"content_block_stop"}`, "index", s.blockIndex)
	return []translator.Event{event("content_block_stop", data)}
}

func (s *streamState) Next(d translator.Delta) []translator.Event {
	if s.closed {
		return nil
	}
	var events []translator.Event
	if !s.started {
		events = append(events, s.start()...)
	}

	if d.Text != "" {
		if s.open != blockText {
			events = append(events, s.closeBlock()...)
			s.blockIndex++
			s.open = blockText
			start := `{"type":"content_block_start","content_block":{"type":"text","text":""}}`
			start, _ = sjson.Set(start, "index", s.blockIndex)
			events = append(events, event("content_block_start", start))
		}
		delta := `{"type":"content_block_delta","delta":{"type":"text_delta"}}`
		delta, _ = sjson.Set(delta, "index", s.blockIndex)
		delta, _ = sjson.Set(delta, "delta.text", d.Text)
		events = append(events, event("content_block_delta", delta))
	}

	if tu := d.ToolUse; tu != nil {
		if tu.Start {
			events = append(events, s.closeBlock()...)
			s.blockIndex++
			s.open = blockTool
			s.sawTool = true
			start := `{"type":"content_block_start","content_block":{"type":"tool_use","input":{}}}`
			start, _ = sjson.Set(start, "index", s.blockIndex)
			start, _ = sjson.Set(start, "content_block.id", tu.ID)
			start, _ = sjson.Set(start, "content_block.name", tu.Name)
			events = append(events, event("content_block_start", start))
		}
		if tu.PartialInput != "" && s.open == blockTool {
			delta := `{"type":"content_block_delta","delta":{"type":"input_json_delta"}}`
			delta, _ = sjson.Set(delta, "index", s.blockIndex)
			delta, _ = sjson.Set(delta, "delta.partial_json", tu.PartialInput)
			events = append(events, event("content_block_delta", delta))
		}
	}
	return events
}

func (s *streamState) Finish(stop translator.StopInfo) []translator.Event {
	if s.closed {
		return nil
	}
	s.closed = true

	var events []translator.Event
	if !s.started {
		events = append(events, s.start()...)
	}
	events = append(events, s.closeBlock()...)

	reason := stop.Reason
	if reason == "" {
		reason = translator.StopEndTurn
	}
	if s.sawTool && reason == translator.StopEndTurn {
		reason = translator.StopToolUse
	}

	in := stop.Usage.InputTokens
	if in == 0 {
		in = s.promptTokens
	}
	delta := `{"type":"message_delta","delta":{"stop_sequence":null}}`
	delta, _ = sjson.Set(delta, "delta.stop_reason", reason)
	delta, _ = sjson.Set(delta, "usage.input_tokens", in)
	delta, _ = sjson.Set(delta, "usage.output_tokens", stop.Usage.OutputTokens)
	events = append(events, event("message_delta", delta))
	events = append(events, event("message_stop", `{"type":"message_stop"}`))
	return events
}

func (s *streamState) Fail(err error) []translator.Event {
	if s.closed {
		return nil
	}
	s.closed = true
	data, _ := sjson.Set(`{"type":"error","error":{"type":"api_error"}}`, "error.message", err.Error())
	return []translator.Event{event("error", data)}
}
