// Package openai implements the OpenAI chat-completions codec: request
// parsing into the canonical form and response/stream rendering back into
// chat.completion objects and chunk SSE frames.
package openai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kirogate/kirogate/internal/translator"
)

const defaultMaxTokens = 4096

// Codec is stateless and safe for concurrent use.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Dialect() translator.Dialect { return translator.DialectOpenAI }

// EncodeRequest parses an OpenAI chat-completions body. System messages are
// folded into Request.System in order of appearance; tool role messages
// become tool_result blocks attached to a user message.
func (*Codec) EncodeRequest(raw []byte) (*translator.Request, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	root := gjson.ParseBytes(raw)

	model := root.Get("model").String()
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	msgs := root.Get("messages")
	if !msgs.IsArray() || len(msgs.Array()) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}

	req := &translator.Request{
		Model:  model,
		Stream: root.Get("stream").Bool(),
	}

	if v := root.Get("max_completion_tokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	} else if v := root.Get("max_tokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if v := root.Get("temperature"); v.Exists() {
		t := v.Float()
		req.Temperature = &t
	}
	if v := root.Get("top_p"); v.Exists() {
		t := v.Float()
		req.TopP = &t
	}
	switch stop := root.Get("stop"); {
	case stop.IsArray():
		for _, s := range stop.Array() {
			req.StopSequences = append(req.StopSequences, s.String())
		}
	case stop.Type == gjson.String:
		req.StopSequences = append(req.StopSequences, stop.String())
	}

	var systems []string
	for _, m := range msgs.Array() {
		role := m.Get("role").String()
		switch role {
		case "system", "developer":
			systems = append(systems, contentText(m.Get("content")))
		case "user":
			blocks, err := userBlocks(m.Get("content"))
			if err != nil {
				return nil, err
			}
			req.Messages = append(req.Messages, translator.Message{Role: translator.RoleUser, Content: blocks})
		case "assistant":
			msg := translator.Message{Role: translator.RoleAssistant}
			if txt := contentText(m.Get("content")); txt != "" {
				msg.Content = append(msg.Content, translator.Block{Type: "text", Text: txt})
			}
			for _, tc := range m.Get("tool_calls").Array() {
				var input map[string]any
				if args := tc.Get("function.arguments").String(); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						input = map[string]any{}
					}
				}
				msg.Content = append(msg.Content, translator.Block{
					Type:      "tool_use",
					ToolUseID: tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Input:     input,
				})
			}
			if len(msg.Content) == 0 {
				msg.Content = append(msg.Content, translator.Block{Type: "text"})
			}
			req.Messages = append(req.Messages, msg)
		case "tool":
			req.Messages = append(req.Messages, translator.Message{
				Role: translator.RoleUser,
				Content: []translator.Block{{
					Type:      "tool_result",
					ToolUseID: m.Get("tool_call_id").String(),
					Content:   contentText(m.Get("content")),
				}},
			})
		default:
			return nil, fmt.Errorf("unsupported message role %q", role)
		}
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages must contain at least one user or assistant message")
	}
	req.System = strings.Join(systems, "\n\n")

	for _, t := range root.Get("tools").Array() {
		if t.Get("type").String() != "function" {
			continue
		}
		fn := t.Get("function")
		name := fn.Get("name").String()
		if name == "" {
			return nil, fmt.Errorf("tool function name is required")
		}
		var schema any
		if p := fn.Get("parameters"); p.Exists() {
			schema = p.Value()
		}
		req.Tools = append(req.Tools, translator.Tool{
			Name:        name,
			Description: fn.Get("description").String(),
			InputSchema: schema,
		})
	}

	return req, nil
}

// contentText flattens OpenAI content (string or parts array) into text.
func contentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		for _, p := range content.Array() {
			if p.Get("type").String() == "text" {
				parts = append(parts, p.Get("text").String())
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// userBlocks expands user content parts into canonical blocks, decoding
// data-URL image parts into inline image blocks.
func userBlocks(content gjson.Result) ([]translator.Block, error) {
	if content.Type == gjson.String {
		return []translator.Block{{Type: "text", Text: content.String()}}, nil
	}
	if !content.IsArray() {
		return nil, fmt.Errorf("user content must be a string or an array of parts")
	}
	var blocks []translator.Block
	for _, p := range content.Array() {
		switch p.Get("type").String() {
		case "text":
			blocks = append(blocks, translator.Block{Type: "text", Text: p.Get("text").String()})
		case "image_url":
			url := p.Get("image_url.url").String()
			media, data, ok := parseDataURL(url)
			if !ok {
				return nil, fmt.Errorf("image_url must be a base64 data URL")
			}
			blocks = append(blocks, translator.Block{Type: "image", MediaType: media, Data: data})
		default:
			return nil, fmt.Errorf("unsupported content part type %q", p.Get("type").String())
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, translator.Block{Type: "text"})
	}
	return blocks, nil
}

func parseDataURL(url string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := url[len("data:"):]
	idx := strings.Index(rest, ";base64,")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(";base64,"):], true
}

// DecodeResponse renders a chat.completion object.
func (*Codec) DecodeResponse(resp *translator.Response) ([]byte, error) {
	out := `{"object":"chat.completion"}`
	out, _ = sjson.Set(out, "id", resp.ID)
	out, _ = sjson.Set(out, "created", time.Now().Unix())
	out, _ = sjson.Set(out, "model", resp.Model)

	msg := `{"role":"assistant","content":null}`
	if resp.Content != "" {
		msg, _ = sjson.Set(msg, "content", resp.Content)
	}
	for i, tu := range resp.ToolUses {
		args, err := json.Marshal(tu.Input)
		if err != nil {
			return nil, fmt.Errorf("encode tool arguments: %w", err)
		}
		prefix := fmt.Sprintf("tool_calls.%d", i)
		msg, _ = sjson.Set(msg, prefix+".id", tu.ID)
		msg, _ = sjson.Set(msg, prefix+".type", "function")
		msg, _ = sjson.Set(msg, prefix+".function.name", tu.Name)
		msg, _ = sjson.Set(msg, prefix+".function.arguments", string(args))
	}

	out, _ = sjson.SetRaw(out, "choices.0.message", msg)
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.Set(out, "choices.0.finish_reason", finishReason(resp.StopReason))
	out, _ = sjson.Set(out, "usage.prompt_tokens", resp.Usage.InputTokens)
	out, _ = sjson.Set(out, "usage.completion_tokens", resp.Usage.OutputTokens)
	out, _ = sjson.Set(out, "usage.total_tokens", resp.Usage.InputTokens+resp.Usage.OutputTokens)
	return []byte(out), nil
}

func finishReason(stop string) string {
	switch stop {
	case translator.StopToolUse:
		return "tool_calls"
	case translator.StopMaxTokens:
		return "length"
	default:
		return "stop"
	}
}
