package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/user/slackclaw/internal/dsl"
	"github.com/user/slackclaw/internal/render"
	"github.com/user/slackclaw/internal/runtime"
)

// UpdateMessage rewrites a previously posted message in place. Useful for
// progress updates and for retiring stale button prompts.
type UpdateMessage struct{}

func NewUpdateMessage() *UpdateMessage { return &UpdateMessage{} }

func (u *UpdateMessage) Name() string { return "update_message" }
func (u *UpdateMessage) Description() string {
	return "Replace the content of a message this bot posted earlier, identified by its timestamp"
}
func (u *UpdateMessage) Async() bool { return false }

// Updates rewrite existing content rather than adding to the channel, so
// they do not count against the per-turn message cap.
func (u *UpdateMessage) Visible() bool { return false }

func (u *UpdateMessage) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"ts": {
				Type:        "string",
				Description: "Timestamp of the message to update, as returned by post_message",
			},
			"text": {
				Type:        "string",
				Description: "The replacement text, optionally using #type: formatting blocks",
			},
		},
		Required: []string{"ts", "text"},
	}
}

func (u *UpdateMessage) Execute(ctx context.Context, tcx *runtime.ToolContext, params map[string]any) (string, error) {
	ts, _ := params["ts"].(string)
	text, _ := params["text"].(string)
	if ts == "" || text == "" {
		return "", fmt.Errorf("ts and text are required")
	}

	blocks := dsl.Parse(text)
	msg, groups := render.Assemble(blocks, tcx.AccentColor)

	if err := tcx.Chat.UpdateMessage(ctx, tcx.Channel, ts, msg); err != nil {
		return "", fmt.Errorf("update message: %w", err)
	}

	for i := range groups {
		groups[i].Channel = tcx.Channel
		groups[i].MessageTS = ts
		tcx.Thread.RegisterButtons(&groups[i])
	}
	return fmt.Sprintf("message %s updated", ts), nil
}
