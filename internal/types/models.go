// internal/types/models.go
package types

import (
	"encoding/json"
	"sort"
	"time"
)

// Role identifies the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation thread. Messages are append-only:
// once recorded they are never edited, only superseded by later entries.
type Message struct {
	Text          string    `json:"text"`
	Role          Role      `json:"role"`
	At            time.Time `json:"at"`
	IsButtonClick bool      `json:"is_button_click,omitempty"`
	IsSystemNote  bool      `json:"is_system_note,omitempty"`
	IsParent      bool      `json:"is_parent,omitempty"`
	Ordinal       int       `json:"ordinal"`
}

// InboundEvent is a normalized platform event entering the gateway.
type InboundEvent struct {
	Source        string   `json:"source"`
	ThreadID      ThreadID `json:"thread_id"`
	Channel       string   `json:"channel"`
	User          string   `json:"user"`
	Text          string   `json:"text"`
	ThreadTS      string   `json:"thread_ts,omitempty"`
	EventTS       string   `json:"event_ts,omitempty"`
	IsButtonClick bool     `json:"is_button_click,omitempty"`
	ButtonValue   string   `json:"button_value,omitempty"`
	ButtonLabel   string   `json:"button_label,omitempty"`
}

// ToolCall is one structured action request produced from a model turn.
// Reasoning is always hoisted to the top level before dispatch; it never
// survives nested inside Parameters.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Reasoning  string         `json:"reasoning"`
	Parameters map[string]any `json:"parameters"`
}

// ToolExecutionRecord captures one tool dispatch and its outcome.
type ToolExecutionRecord struct {
	Tool     string         `json:"tool"`
	Params   map[string]any `json:"params"`
	Result   string         `json:"result,omitempty"`
	Err      string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
	Duration time.Duration  `json:"duration"`
}

// Key returns the record's idempotency key: tool name plus canonicalized
// parameters. Two dispatches with the same key are the same action.
func (r *ToolExecutionRecord) Key() string {
	return IdempotencyKey(r.Tool, r.Params)
}

// IdempotencyKey canonicalizes params (recursively sorted keys, which
// encoding/json gives us for maps) and joins them with the tool name.
func IdempotencyKey(tool string, params map[string]any) string {
	data, err := json.Marshal(canonicalize(params))
	if err != nil {
		return tool + ":?"
	}
	return tool + ":" + string(data)
}

// canonicalize rebuilds a parameter value so json.Marshal emits a
// deterministic form: map keys sort alphabetically, slices keep order.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}

// ButtonSpec describes one rendered button.
type ButtonSpec struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Style string `json:"style,omitempty"`
}

// ButtonGroup records an interactive element block that was posted to the
// platform, so a later click event can be resolved back to it.
type ButtonGroup struct {
	Prefix    string       `json:"prefix"`
	Buttons   []ButtonSpec `json:"buttons"`
	Channel   string       `json:"channel"`
	MessageTS string       `json:"message_ts"`
	CreatedAt time.Time    `json:"created_at"`
}
