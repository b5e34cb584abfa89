// Package translator defines the canonical, upstream-shaped request/response
// model and the codec contract that maps each client dialect (OpenAI chat
// completions, Anthropic messages) onto it. Codecs are pure: they hold no
// shared state, and streaming translation is an explicit per-request state
// machine.
package translator

// Dialect identifies a client-facing API shape. The set is closed.
type Dialect string

const (
	// DialectOpenAI is the OpenAI chat-completions shape (/v1/chat/completions).
	DialectOpenAI Dialect = "openai"
	// DialectClaude is the Anthropic messages shape (/v1/messages).
	DialectClaude Dialect = "claude"
)

// Role tags a canonical message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one unit of message content. Type selects which fields are set.
type Block struct {
	// Type is one of "text", "image", "tool_use", "tool_result".
	Type string

	// Text content, for "text" blocks.
	Text string

	// Image fields, for "image" blocks. Data is base64; MediaType is the
	// MIME type (e.g. "image/png").
	MediaType string
	Data      string

	// Tool fields. ToolUseID and Name for "tool_use"; ToolUseID, Content
	// and IsError for "tool_result".
	ToolUseID string
	Name      string
	Input     map[string]any
	Content   string
	IsError   bool
}

// Message is a role-tagged sequence of content blocks.
type Message struct {
	Role    Role
	Content []Block
}

// Tool describes a callable tool offered by the client.
type Tool struct {
	Name        string
	Description string
	InputSchema any
}

// Request is the canonical chat request, shaped after the upstream provider's
// internal (Claude-like) format. It exists only as a transient value between
// codec encode and upstream dispatch.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	Tools         []Tool
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
	Stream        bool
}

// Usage carries token accounting for one exchange.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ToolUse is one complete tool invocation in a buffered response.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// Response is the canonical buffered response.
type Response struct {
	ID         string
	Model      string
	Content    string
	ToolUses   []ToolUse
	StopReason string
	Usage      Usage
}

// Canonical stop reasons follow the upstream (Claude-like) vocabulary.
// Codecs map them to their dialect's finish framing.
const (
	StopEndTurn      = "end_turn"
	StopToolUse      = "tool_use"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
)

// Delta is one incremental unit of streamed upstream output.
type Delta struct {
	// Text is a content text fragment.
	Text string
	// ToolUse carries an incremental tool invocation, when present.
	ToolUse *ToolUseDelta
}

// ToolUseDelta is a streamed tool invocation fragment. Start signals a new
// tool call; PartialInput carries incremental JSON for the current one.
type ToolUseDelta struct {
	Start        bool
	ID           string
	Name         string
	PartialInput string
}

// StopInfo terminates a stream: the finish reason plus final usage counters.
type StopInfo struct {
	Reason string
	Usage  Usage
}

// StreamItem is what the upstream client delivers on its stream channel.
// Exactly one of Delta, Stop, or Err is set per item; the channel is closed
// after Stop or Err. A channel closed without a Stop is treated by the
// orchestrator as an implicit end_turn.
type StreamItem struct {
	Delta *Delta
	Stop  *StopInfo
	Err   error
}
