// Package registry declares the model set the gateway serves. The upstream
// provider has no listing API, so the catalog is declared here and served
// through the catalog cache.
package registry

// Model is one entry served on /v1/models.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	OwnedBy     string `json:"owned_by"`
	// ContextWindow and MaxOutputTokens are advisory limits surfaced to
	// clients; the upstream enforces its own.
	ContextWindow   int `json:"context_window"`
	MaxOutputTokens int `json:"max_output_tokens"`
}

// Models returns the served model set. "auto" delegates model selection to
// the upstream.
func Models() []Model {
	return []Model{
		{
			ID:              "auto",
			DisplayName:     "Auto (upstream selection)",
			OwnedBy:         "anthropic",
			ContextWindow:   200000,
			MaxOutputTokens: 32000,
		},
		{
			ID:              "claude-opus-4.5",
			DisplayName:     "Claude Opus 4.5",
			OwnedBy:         "anthropic",
			ContextWindow:   200000,
			MaxOutputTokens: 32000,
		},
		{
			ID:              "claude-sonnet-4.5",
			DisplayName:     "Claude Sonnet 4.5",
			OwnedBy:         "anthropic",
			ContextWindow:   200000,
			MaxOutputTokens: 64000,
		},
		{
			ID:              "claude-sonnet-4",
			DisplayName:     "Claude Sonnet 4",
			OwnedBy:         "anthropic",
			ContextWindow:   200000,
			MaxOutputTokens: 64000,
		},
		{
			ID:              "claude-haiku-4.5",
			DisplayName:     "Claude Haiku 4.5",
			OwnedBy:         "anthropic",
			ContextWindow:   200000,
			MaxOutputTokens: 64000,
		},
	}
}

// IsKnown reports whether the gateway serves the given model ID.
func IsKnown(id string) bool {
	for _, m := range Models() {
		if m.ID == id {
			return true
		}
	}
	return false
}
