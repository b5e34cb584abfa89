// Package claude implements the Anthropic messages codec. The canonical form
// is already Claude-shaped, so request encoding is mostly validation plus
// block normalization, and streaming reproduces the messages SSE protocol
// (message_start through message_stop).
package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kirogate/kirogate/internal/translator"
)

type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Dialect() translator.Dialect { return translator.DialectClaude }

func (*Codec) EncodeRequest(raw []byte) (*translator.Request, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	root := gjson.ParseBytes(raw)

	model := root.Get("model").String()
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	maxTokens := int(root.Get("max_tokens").Int())
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max_tokens must be a positive integer")
	}
	msgs := root.Get("messages")
	if !msgs.IsArray() || len(msgs.Array()) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}

	req := &translator.Request{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    root.Get("stream").Bool(),
		System:    systemText(root.Get("system")),
	}
	if v := root.Get("temperature"); v.Exists() {
		t := v.Float()
		req.Temperature = &t
	}
	if v := root.Get("top_p"); v.Exists() {
		t := v.Float()
		req.TopP = &t
	}
	for _, s := range root.Get("stop_sequences").Array() {
		req.StopSequences = append(req.StopSequences, s.String())
	}

	for _, m := range msgs.Array() {
		role := translator.Role(m.Get("role").String())
		if role != translator.RoleUser && role != translator.RoleAssistant {
			return nil, fmt.Errorf("unsupported message role %q", m.Get("role").String())
		}
		blocks, err := contentBlocks(m.Get("content"))
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, translator.Message{Role: role, Content: blocks})
	}

	for _, t := range root.Get("tools").Array() {
		name := t.Get("name").String()
		if name == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		var schema any
		if s := t.Get("input_schema"); s.Exists() {
			schema = s.Value()
		}
		req.Tools = append(req.Tools, translator.Tool{
			Name:        name,
			Description: t.Get("description").String(),
			InputSchema: schema,
		})
	}

	return req, nil
}

// systemText accepts both the string form and the content-block array form.
func systemText(sys gjson.Result) string {
	if sys.Type == gjson.String {
		return sys.String()
	}
	if sys.IsArray() {
		var parts []string
		for _, b := range sys.Array() {
			if b.Get("type").String() == "text" {
				parts = append(parts, b.Get("text").String())
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

func contentBlocks(content gjson.Result) ([]translator.Block, error) {
	if content.Type == gjson.String {
		return []translator.Block{{Type: "text", Text: content.String()}}, nil
	}
	if !content.IsArray() {
		return nil, fmt.Errorf("message content must be a string or an array of blocks")
	}
	var blocks []translator.Block
	for _, b := range content.Array() {
		switch typ := b.Get("type").String(); typ {
		case "text":
			blocks = append(blocks, translator.Block{Type: "text", Text: b.Get("text").String()})
		case "image":
			src := b.Get("source")
			if src.Get("type").String() != "base64" {
				return nil, fmt.Errorf("image source must be base64")
			}
			blocks = append(blocks, translator.Block{
				Type:      "image",
				MediaType: src.Get("media_type").String(),
				Data:      src.Get("data").String(),
			})
		case "tool_use":
			var input map[string]any
			if in := b.Get("input"); in.IsObject() {
				input, _ = in.Value().(map[string]any)
			}
			blocks = append(blocks, translator.Block{
				Type:      "tool_use",
				ToolUseID: b.Get("id").String(),
				Name:      b.Get("name").String(),
				Input:     input,
			})
		case "tool_result":
			blocks = append(blocks, translator.Block{
				Type:      "tool_result",
				ToolUseID: b.Get("tool_use_id").String(),
				Content:   toolResultText(b.Get("content")),
				IsError:   b.Get("is_error").Bool(),
			})
		default:
			return nil, fmt.Errorf("unsupported content block type %q", typ)
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, translator.Block{Type: "text"})
	}
	return blocks, nil
}

func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		for _, b := range content.Array() {
			if b.Get("type").String() == "text" {
				parts = append(parts, b.Get("text").String())
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// DecodeResponse renders an Anthropic message object.
func (*Codec) DecodeResponse(resp *translator.Response) ([]byte, error) {
	out := `{"type":"message","role":"assistant"}`
	out, _ = sjson.Set(out, "id", resp.ID)
	out, _ = sjson.Set(out, "model", resp.Model)

	idx := 0
	if resp.Content != "" || len(resp.ToolUses) == 0 {
		prefix := fmt.Sprintf("content.%d", idx)
		out, _ = sjson.Set(out, prefix+".type", "text")
		out, _ = sjson.Set(out, prefix+".text", resp.Content)
		idx++
	}
	for _, tu := range resp.ToolUses {
		input, err := json.Marshal(tu.Input)
		if err != nil {
			return nil, fmt.Errorf("encode tool input: %w", err)
		}
		prefix := fmt.Sprintf("content.%d", idx)
		out, _ = sjson.Set(out, prefix+".type", "tool_use")
		out, _ = sjson.Set(out, prefix+".id", tu.ID)
		out, _ = sjson.Set(out, prefix+".name", tu.Name)
		out, _ = sjson.SetRaw(out, prefix+".input", string(input))
		idx++
	}

	reason := resp.StopReason
	if reason == "" {
		reason = translator.StopEndTurn
	}
	out, _ = sjson.Set(out, "stop_reason", reason)
	out, _ = sjson.SetRaw(out, "stop_sequence", "null")
	out, _ = sjson.Set(out, "usage.input_tokens", resp.Usage.InputTokens)
	out, _ = sjson.Set(out, "usage.output_tokens", resp.Usage.OutputTokens)
	return []byte(out), nil
}
