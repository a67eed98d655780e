// internal/runtime/tool.go
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
	"github.com/user/slackclaw/pkg/llm"
)

// ToolContext carries the thread-scoped collaborators a tool may use.
// Tools must not retain it beyond the call.
type ToolContext struct {
	Thread      *store.Thread
	Chat        types.ChatService
	Channel     string
	ThreadTS    string
	EventTS     string
	AccentColor string
}

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() *jsonschema.Schema
	// Async marks tools whose work may outlive the current loop iteration.
	Async() bool
	// Visible marks tools that post a user-visible message, which the
	// orchestrator counts against the per-turn message cap.
	Visible() bool
	Execute(ctx context.Context, tcx *ToolContext, params map[string]any) (string, error)
}

// ToolNotFoundError reports a lookup for a name no tool answers to. It
// carries the valid names so the error fed back to the model doubles as a
// correction hint.
type ToolNotFoundError struct {
	Name  string
	Valid []string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("unknown tool %q (valid tools: %s)", e.Name, strings.Join(e.Valid, ", "))
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Lookup returns the tool for name. Namespace prefixes the model may have
// hallucinated onto the name ("functions.post_message", "tools/finish")
// are stripped before the lookup. An unknown name yields a
// *ToolNotFoundError listing the valid names.
func (r *Registry) Lookup(name string) (Tool, error) {
	stripped := stripNamespace(name)
	if t, ok := r.tools[stripped]; ok {
		return t, nil
	}
	return nil, &ToolNotFoundError{Name: name, Valid: r.Names()}
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// SchemaForModel converts registered tools to the model's function-calling
// schema format.
func (r *Registry) SchemaForModel() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params, err := json.Marshal(t.Parameters())
		if err != nil {
			params = []byte(`{"type":"object"}`)
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return out
}

// stripNamespace drops a dotted or slashed namespace prefix from a tool
// name: "functions.post_message" and "tools/post_message" both resolve to
// "post_message".
func stripNamespace(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// arrayNameSuffixes are parameter-name endings that read as collections.
var arrayNameSuffixes = []string{"s", "list", "items", "array"}

// objectNameHints are substrings that suggest a nested object value.
var objectNameHints = []string{"map", "object", "data", "options", "config"}

// InferParameterSchema builds a function-calling schema from bare
// name→description pairs, inferring each parameter's structural type from
// naming heuristics and the free-text description. Names with plural or
// list-like suffixes become arrays, object-ish names become objects,
// everything else is a string. Parameters whose description contains
// "optional" are left out of the required list.
func InferParameterSchema(params map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(params))
	var required []string

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desc := params[name]
		properties[name] = &jsonschema.Schema{
			Type:        inferType(name, desc),
			Description: desc,
		}
		if properties[name].Type == "array" {
			properties[name].Items = &jsonschema.Schema{Type: "string"}
		}
		if !strings.Contains(strings.ToLower(desc), "optional") {
			required = append(required, name)
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func inferType(name, desc string) string {
	lower := strings.ToLower(name)
	lowerDesc := strings.ToLower(desc)

	for _, hint := range objectNameHints {
		if strings.Contains(lower, hint) {
			return "object"
		}
	}
	if strings.Contains(lowerDesc, "list of") || strings.Contains(lowerDesc, "array of") {
		return "array"
	}
	for _, suffix := range arrayNameSuffixes {
		if suffix == "s" {
			// plural heuristic: avoid false positives like "status"
			if strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && !strings.HasSuffix(lower, "us") && len(lower) > 3 {
				return "array"
			}
			continue
		}
		if strings.HasSuffix(lower, suffix) {
			return "array"
		}
	}
	return "string"
}
