package kiro

import (
	"encoding/json"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/kirogate/kirogate/internal/translator"
)

// The upstream usually reports usage on the stream, but not always. When it
// doesn't we estimate with the o200k encoding; the counts are approximate
// but keep client-side accounting and billing dashboards sane.

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func tokenCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		codec, _ = tokenizer.Get(tokenizer.O200kBase)
	})
	return codec
}

func countTokens(text string) int64 {
	if text == "" {
		return 0
	}
	c := tokenCodec()
	if c == nil {
		// No encoding data available; fall back to a chars/4 heuristic.
		return int64(len(text)+3) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return int64(len(text)+3) / 4
	}
	return int64(len(ids))
}

// EstimateInputTokens approximates the prompt size of a canonical request.
func EstimateInputTokens(req *translator.Request) int64 {
	total := countTokens(req.System)
	for _, msg := range req.Messages {
		for _, b := range msg.Content {
			switch b.Type {
			case "text":
				total += countTokens(b.Text)
			case "tool_result":
				total += countTokens(b.Content)
			case "tool_use":
				total += countTokens(b.Name)
				if raw, err := json.Marshal(b.Input); err == nil {
					total += countTokens(string(raw))
				}
			}
		}
	}
	for _, t := range req.Tools {
		total += countTokens(t.Name) + countTokens(t.Description)
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			total += countTokens(string(raw))
		}
	}
	return total
}

// EstimateOutputTokens approximates completion size from generated text and
// tool invocations.
func EstimateOutputTokens(content string, tools []translator.ToolUse) int64 {
	total := countTokens(content)
	for _, tu := range tools {
		total += countTokens(tu.Name)
		if raw, err := json.Marshal(tu.Input); err == nil {
			total += countTokens(string(raw))
		}
	}
	return total
}
