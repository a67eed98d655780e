package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/user/slackclaw/internal/runtime"
)

// AddReaction attaches an emoji reaction to the message that triggered
// the current turn.
type AddReaction struct{}

func NewAddReaction() *AddReaction { return &AddReaction{} }

func (a *AddReaction) Name() string { return "add_reaction" }
func (a *AddReaction) Description() string {
	return "Add an emoji reaction to the user's message, e.g. thumbsup or eyes"
}
func (a *AddReaction) Async() bool   { return false }
func (a *AddReaction) Visible() bool { return false }

func (a *AddReaction) Parameters() *jsonschema.Schema {
	return runtime.InferParameterSchema(map[string]string{
		"name": "The emoji name without colons, e.g. thumbsup",
	})
}

func (a *AddReaction) Execute(ctx context.Context, tcx *runtime.ToolContext, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	name = strings.Trim(name, ": ")
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if tcx.EventTS == "" {
		return "", fmt.Errorf("no triggering message to react to")
	}
	if err := tcx.Chat.AddReaction(ctx, tcx.Channel, tcx.EventTS, name); err != nil {
		return "", fmt.Errorf("add reaction: %w", err)
	}
	return fmt.Sprintf("reacted with :%s:", name), nil
}
