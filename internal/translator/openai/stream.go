package openai

import (
	"time"

	"github.com/tidwall/sjson"

	"github.com/kirogate/kirogate/internal/translator"
)

// streamState tracks the chunk FSM for one chat.completion.chunk stream.
type streamState struct {
	id           string
	model        string
	created      int64
	promptTokens int64

	roleSent  bool
	toolIndex int
	toolOpen  bool
	sawTool   bool
	closed    bool
}

// NewStream returns a chunk translator. The first content chunk carries the
// assistant role; the final chunk carries finish_reason and usage, followed
// by the [DONE] terminator.
func (*Codec) NewStream(id, model string, promptTokens int64) translator.StreamTranslator {
	return &streamState{
		id:           id,
		model:        model,
		created:      time.Now().Unix(),
		promptTokens: promptTokens,
		toolIndex:    -1,
	}
}

func (s *streamState) chunk(delta string) translator.Event {
	out := `{"object":"chat.completion.chunk"}`
	out, _ = sjson.Set(out, "id", s.id)
	out, _ = sjson.Set(out, "created", s.created)
	out, _ = sjson.Set(out, "model", s.model)
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.SetRaw(out, "choices.0.delta", delta)
	out, _ = sjson.SetRaw(out, "choices.0.finish_reason", "null")
	return translator.Event{Data: []byte(out)}
}

func (s *streamState) Next(d translator.Delta) []translator.Event {
	if s.closed {
		return nil
	}
	var events []translator.Event

	if !s.roleSent {
		s.roleSent = true
		events = append(events, s.chunk(`{"role":"assistant","content":""}`))
	}

	if d.Text != "" {
		delta, _ := sjson.Set(`{}`, "content", d.Text)
		events = append(events, s.chunk(delta))
	}

	if tu := d.ToolUse; tu != nil {
		if tu.Start {
			s.toolIndex++
			s.toolOpen = true
			s.sawTool = true
			delta := `{}`
			delta, _ = sjson.Set(delta, "tool_calls.0.index", s.toolIndex)
			delta, _ = sjson.Set(delta, "tool_calls.0.id", tu.ID)
			delta, _ = sjson.Set(delta, "tool_calls.0.type", "function")
			delta, _ = sjson.Set(delta, "tool_calls.0.function.name", tu.Name)
			delta, _ = sjson.Set(delta, "tool_calls.0.function.arguments", "")
			events = append(events, s.chunk(delta))
		}
		if tu.PartialInput != "" && s.toolOpen {
			delta := `{}`
			delta, _ = sjson.Set(delta, "tool_calls.0.index", s.toolIndex)
			delta, _ = sjson.Set(delta, "tool_calls.0.function.arguments", tu.PartialInput)
			events = append(events, s.chunk(delta))
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
	if !s.roleSent {
		// Empty upstream stream still yields a well-formed completion.
		events = append(events, s.chunk(`{"role":"assistant","content":""}`))
	}

	reason := stop.Reason
	if reason == "" {
		reason = translator.StopEndTurn
	}
	if s.sawTool && reason == translator.StopEndTurn {
		reason = translator.StopToolUse
	}

	out := `{"object":"chat.completion.chunk"}`
	out, _ = sjson.Set(out, "id", s.id)
	out, _ = sjson.Set(out, "created", s.created)
	out, _ = sjson.Set(out, "model", s.model)
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.SetRaw(out, "choices.0.delta", `{}`)
	out, _ = sjson.Set(out, "choices.0.finish_reason", finishReason(reason))

	in := stop.Usage.InputTokens
	if in == 0 {
		in = s.promptTokens
	}
	out, _ = sjson.Set(out, "usage.prompt_tokens", in)
	out, _ = sjson.Set(out, "usage.completion_tokens", stop.Usage.OutputTokens)
	out, _ = sjson.Set(out, "usage.total_tokens", in+stop.Usage.OutputTokens)

	events = append(events, translator.Event{Data: []byte(out)})
	events = append(events, translator.Event{Done: true})
	return events
}

func (s *streamState) Fail(err error) []translator.Event {
	if s.closed {
		return nil
	}
	s.closed = true
	out, _ := sjson.Set(`{"error":{"type":"upstream_error"}}`, "error.message", err.Error())
	return []translator.Event{
		{Data: []byte(out)},
		{Done: true},
	}
}
