// Package chat is a minimal client for OpenAI-style chat-completion
// endpoints such as the BigModel (GLM) API. Responses are returned as raw
// bytes so callers can print them verbatim.
package chat

import "encoding/json"

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role/content pair in the conversation.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Thinking toggles the provider's deep-thinking mode.
type Thinking struct {
	Type string `json:"type"` // "enabled" or "disabled"
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObject asks the model to answer with a JSON object.
var JSONObject = &ResponseFormat{Type: "json_object"}

// Request is the chat-completion request body.
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Thinking       *Thinking       `json:"thinking,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Extra holds provider parameters with no typed field, such as
	// max_tokens or do_sample. Keys are sjson paths; values are raw JSON
	// written over the encoded body.
	Extra map[string]json.RawMessage `json:"-"`
}

// Float returns a pointer to v, for the optional sampling fields.
func Float(v float64) *float64 {
	return &v
}
