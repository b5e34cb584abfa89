package kiro

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/kirogate/kirogate/internal/translator"
)

func TestMapModel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"claude-sonnet-4.5", "claude-sonnet-4.5"},
		{"claude-sonnet-4-5", "claude-sonnet-4.5"},
		{"claude-opus-4-5", "claude-opus-4.5"},
		{"auto", "auto"},
		{"gpt-4o", "auto"},
		{"", "auto"},
	}
	for _, tc := range cases {
		if got := MapModel(tc.in); got != tc.want {
			t.Errorf("MapModel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildPayload_Basic(t *testing.T) {
	req := &translator.Request{
		Model:  "claude-sonnet-4.5",
		System: "be brief",
		Messages: []translator.Message{
			{Role: translator.RoleUser, Content: []translator.Block{{Type: "text", Text: "hello"}}},
		},
	}
	raw, err := buildPayload(req, "arn:aws:codewhisperer:profile/x", OriginEditor)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	body := gjson.ParseBytes(raw)

	cs := body.Get("conversationState")
	if cs.Get("chatTriggerType").String() != "MANUAL" {
		t.Errorf("chatTriggerType = %q", cs.Get("chatTriggerType").String())
	}
	if cs.Get("conversationId").String() == "" {
		t.Error("conversationId missing")
	}
	if !cs.Get("history").IsArray() || len(cs.Get("history").Array()) != 0 {
		t.Errorf("history = %s", cs.Get("history").Raw)
	}
	cur := cs.Get("currentMessage.userInputMessage")
	content := cur.Get("content").String()
	if !strings.HasPrefix(content, "--- SYSTEM PROMPT ---\nbe brief\n--- END SYSTEM PROMPT ---") {
		t.Errorf("content = %q", content)
	}
	if !strings.HasSuffix(content, "hello") {
		t.Errorf("content = %q", content)
	}
	if cur.Get("modelId").String() != "claude-sonnet-4.5" || cur.Get("origin").String() != "AI_EDITOR" {
		t.Errorf("modelId/origin = %q/%q", cur.Get("modelId").String(), cur.Get("origin").String())
	}
	if body.Get("profileArn").String() != "arn:aws:codewhisperer:profile/x" {
		t.Errorf("profileArn = %q", body.Get("profileArn").String())
	}
}

func TestBuildPayload_HistoryAndTools(t *testing.T) {
	req := &translator.Request{
		Model: "claude-sonnet-4.5",
		Messages: []translator.Message{
			{Role: translator.RoleUser, Content: []translator.Block{{Type: "text", Text: "weather?"}}},
			{Role: translator.RoleAssistant, Content: []translator.Block{
				{Type: "text", Text: "let me check"},
				{Type: "tool_use", ToolUseID: "tu_1", Name: "get_weather", Input: map[string]any{"city": "Oslo"}},
			}},
			{Role: translator.RoleUser, Content: []translator.Block{
				{Type: "tool_result", ToolUseID: "tu_1", Content: "12C"},
			}},
		},
		Tools: []translator.Tool{
			{Name: "get_weather", Description: "d", InputSchema: map[string]any{"type": "object"}},
		},
	}
	raw, err := buildPayload(req, "", OriginCLI)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	body := gjson.ParseBytes(raw)

	history := body.Get("conversationState.history").Array()
	if len(history) != 2 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Get("userInputMessage.content").String() != "weather?" {
		t.Errorf("history[0] = %s", history[0].Raw)
	}
	asst := history[1].Get("assistantResponseMessage")
	if asst.Get("content").String() != "let me check" {
		t.Errorf("assistant content = %q", asst.Get("content").String())
	}
	if asst.Get("toolUses.0.toolUseId").String() != "tu_1" ||
		asst.Get("toolUses.0.input.city").String() != "Oslo" {
		t.Errorf("assistant toolUses = %s", asst.Get("toolUses").Raw)
	}

	cur := body.Get("conversationState.currentMessage.userInputMessage")
	ctx := cur.Get("userInputMessageContext")
	if ctx.Get("toolResults.0.toolUseId").String() != "tu_1" ||
		ctx.Get("toolResults.0.status").String() != "success" ||
		ctx.Get("toolResults.0.content.0.text").String() != "12C" {
		t.Errorf("toolResults = %s", ctx.Get("toolResults").Raw)
	}
	spec := ctx.Get("tools.0.toolSpecification")
	if spec.Get("name").String() != "get_weather" || !spec.Get("inputSchema.json").Exists() {
		t.Errorf("tools = %s", ctx.Get("tools").Raw)
	}
	if body.Get("profileArn").Exists() {
		t.Error("empty profileArn must be omitted")
	}
}

func TestBuildPayload_Images(t *testing.T) {
	req := &translator.Request{
		Model: "auto",
		Messages: []translator.Message{
			{Role: translator.RoleUser, Content: []translator.Block{
				{Type: "text", Text: "what is this"},
				{Type: "image", MediaType: "image/jpeg", Data: "aGk="},
			}},
		},
	}
	raw, err := buildPayload(req, "", OriginEditor)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	img := gjson.GetBytes(raw, "conversationState.currentMessage.userInputMessage.images.0")
	if img.Get("format").String() != "jpeg" || img.Get("source.bytes").String() != "aGk=" {
		t.Errorf("image = %s", img.Raw)
	}
}

func TestBuildPayload_AssistantPrefill(t *testing.T) {
	req := &translator.Request{
		Model:  "auto",
		System: "respond in JSON",
		Messages: []translator.Message{
			{Role: translator.RoleUser, Content: []translator.Block{{Type: "text", Text: "Write JSON"}}},
			{Role: translator.RoleAssistant, Content: []translator.Block{{Type: "text", Text: "{"}}},
		},
	}
	raw, err := buildPayload(req, "", OriginEditor)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}

	history := gjson.GetBytes(raw, "conversationState.history")
	if n := len(history.Array()); n != 2 {
		t.Fatalf("history length = %d, want 2", n)
	}
	if got := history.Get("0.userInputMessage.content").String(); got != "Write JSON" {
		t.Errorf("history[0] = %q", got)
	}
	if got := history.Get("1.assistantResponseMessage.content").String(); got != "{" {
		t.Errorf("history[1] = %q", got)
	}

	// The current message carries only the folded system prompt.
	current := gjson.GetBytes(raw, "conversationState.currentMessage.userInputMessage")
	if content := current.Get("content").String(); !strings.Contains(content, "respond in JSON") {
		t.Errorf("current content = %q", content)
	}
	if current.Get("modelId").String() != "auto" || current.Get("origin").String() != OriginEditor {
		t.Errorf("current message = %s", current.Raw)
	}
}

func TestImageFormat(t *testing.T) {
	cases := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpeg",
		"image/jpg":  "jpeg",
		"image/webp": "webp",
		"":           "png",
	}
	for in, want := range cases {
		if got := imageFormat(in); got != want {
			t.Errorf("imageFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
