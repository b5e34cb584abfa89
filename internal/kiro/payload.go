package kiro

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirogate/kirogate/internal/translator"
)

// Request origins select which upstream quota pool serves the call.
const (
	OriginEditor = "AI_EDITOR"
	OriginCLI    = "CLI"
)

const chatTriggerManual = "MANUAL"

// Payload structs mirror the CodeWhisperer GenerateAssistantResponse wire
// shape. Field order matters for nothing but readability; omitempty keeps
// optional context out of simple chats.

type payload struct {
	ConversationState conversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

type conversationState struct {
	ConversationID  string           `json:"conversationId"`
	History         []historyMessage `json:"history"`
	CurrentMessage  currentMessage   `json:"currentMessage"`
	ChatTriggerType string           `json:"chatTriggerType"`
}

type currentMessage struct {
	UserInputMessage userInputMessage `json:"userInputMessage"`
}

type historyMessage struct {
	UserInputMessage         *userInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *assistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type userInputMessage struct {
	Content                 string               `json:"content"`
	ModelID                 string               `json:"modelId"`
	Origin                  string               `json:"origin"`
	Images                  []imageBlock         `json:"images,omitempty"`
	UserInputMessageContext *userInputMsgContext `json:"userInputMessageContext,omitempty"`
}

type imageBlock struct {
	Format string      `json:"format"`
	Source imageSource `json:"source"`
}

type imageSource struct {
	Bytes string `json:"bytes"`
}

type userInputMsgContext struct {
	ToolResults []toolResult  `json:"toolResults,omitempty"`
	Tools       []toolWrapper `json:"tools,omitempty"`
}

type toolResult struct {
	ToolUseID string        `json:"toolUseId"`
	Content   []textContent `json:"content"`
	Status    string        `json:"status"`
}

type textContent struct {
	Text string `json:"text"`
}

type toolWrapper struct {
	ToolSpecification toolSpecification `json:"toolSpecification"`
}

type toolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema inputSchema `json:"inputSchema"`
}

type inputSchema struct {
	JSON any `json:"json"`
}

type assistantResponseMessage struct {
	Content  string        `json:"content"`
	ToolUses []toolUseSpec `json:"toolUses,omitempty"`
}

type toolUseSpec struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// modelIDs maps gateway model names to upstream model identifiers. Unknown
// names fall back to "auto" (upstream server-side selection).
var modelIDs = map[string]string{
	"auto":              "auto",
	"claude-opus-4.5":   "claude-opus-4.5",
	"claude-sonnet-4.5": "claude-sonnet-4.5",
	"claude-sonnet-4":   "claude-sonnet-4",
	"claude-haiku-4.5":  "claude-haiku-4.5",
	// Anthropic-style dotless aliases, as clients commonly send them.
	"claude-opus-4-5":   "claude-opus-4.5",
	"claude-sonnet-4-5": "claude-sonnet-4.5",
	"claude-sonnet-4-0": "claude-sonnet-4",
	"claude-haiku-4-5":  "claude-haiku-4.5",
}

// MapModel resolves a client-facing model name to the upstream model ID.
func MapModel(model string) string {
	if id, ok := modelIDs[model]; ok {
		return id
	}
	return "auto"
}

const (
	systemPromptOpen  = "--- SYSTEM PROMPT ---\n"
	systemPromptClose = "\n--- END SYSTEM PROMPT ---\n\n"
)

// buildPayload converts a canonical request into the upstream JSON body.
// The trailing user message becomes the current message and everything
// before it conversation history; the system prompt is folded into the
// current message content between marker lines, since the upstream API has
// no system field. When the conversation ends on an assistant turn
// (assistant prefill), all messages go to history and the current message
// carries only the system prompt.
func buildPayload(req *translator.Request, profileArn, origin string) ([]byte, error) {
	modelID := MapModel(req.Model)

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}

	history := make([]historyMessage, 0, len(req.Messages))
	var current userInputMessage
	var toolResults []toolResult
	haveCurrent := false

	for i, msg := range req.Messages {
		isLast := i == len(req.Messages)-1
		switch msg.Role {
		case translator.RoleUser:
			um, results := userMessage(msg, modelID, origin)
			if isLast {
				current = um
				toolResults = results
				haveCurrent = true
				continue
			}
			if len(results) > 0 {
				um.UserInputMessageContext = &userInputMsgContext{ToolResults: results}
			}
			history = append(history, historyMessage{UserInputMessage: &um})
		case translator.RoleAssistant:
			am := assistantMessage(msg)
			history = append(history, historyMessage{AssistantResponseMessage: &am})
		}
	}

	if !haveCurrent {
		// Assistant prefill: the model continues from the trailing
		// assistant turn in history.
		current = userInputMessage{ModelID: modelID, Origin: origin}
	}
	if req.System != "" {
		current.Content = systemPromptOpen + req.System + systemPromptClose + current.Content
	}

	ctx := &userInputMsgContext{ToolResults: toolResults}
	for _, t := range req.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		ctx.Tools = append(ctx.Tools, toolWrapper{ToolSpecification: toolSpecification{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema{JSON: schema},
		}})
	}
	if len(ctx.Tools) > 0 || len(ctx.ToolResults) > 0 {
		current.UserInputMessageContext = ctx
	}

	p := payload{
		ConversationState: conversationState{
			ConversationID:  uuid.NewString(),
			History:         history,
			CurrentMessage:  currentMessage{UserInputMessage: current},
			ChatTriggerType: chatTriggerManual,
		},
		ProfileArn: profileArn,
	}
	return json.Marshal(p)
}

func userMessage(msg translator.Message, modelID, origin string) (userInputMessage, []toolResult) {
	var content strings.Builder
	var images []imageBlock
	var results []toolResult

	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			content.WriteString(b.Text)
		case "image":
			images = append(images, imageBlock{
				Format: imageFormat(b.MediaType),
				Source: imageSource{Bytes: b.Data},
			})
		case "tool_result":
			status := "success"
			if b.IsError {
				status = "error"
			}
			results = append(results, toolResult{
				ToolUseID: b.ToolUseID,
				Content:   []textContent{{Text: b.Content}},
				Status:    status,
			})
		}
	}

	return userInputMessage{
		Content: content.String(),
		ModelID: modelID,
		Origin:  origin,
		Images:  images,
	}, results
}

func assistantMessage(msg translator.Message) assistantResponseMessage {
	var content strings.Builder
	var uses []toolUseSpec
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			content.WriteString(b.Text)
		case "tool_use":
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			uses = append(uses, toolUseSpec{ToolUseID: b.ToolUseID, Name: b.Name, Input: input})
		}
	}
	return assistantResponseMessage{Content: content.String(), ToolUses: uses}
}

// imageFormat derives the upstream format token ("png", "jpeg") from a MIME
// type.
func imageFormat(mediaType string) string {
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		format := mediaType[i+1:]
		if format == "jpg" {
			return "jpeg"
		}
		return format
	}
	return "png"
}
