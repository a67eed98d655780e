package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/user/slackclaw/internal/dsl"
	"github.com/user/slackclaw/internal/render"
	"github.com/user/slackclaw/internal/runtime"
	"github.com/user/slackclaw/internal/types"
)

// PostMessage posts a (possibly rich) message into the conversation. The
// text parameter is formatting-grammar source; plain text works too.
type PostMessage struct{}

// NewPostMessage creates the post_message tool.
func NewPostMessage() *PostMessage { return &PostMessage{} }

func (p *PostMessage) Name() string { return "post_message" }
func (p *PostMessage) Description() string {
	return "Post a message to the user. Supports the #type: block formatting grammar for headers, sections, images, fields, and buttons."
}
func (p *PostMessage) Async() bool   { return false }
func (p *PostMessage) Visible() bool { return true }

func (p *PostMessage) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"text": {
				Type:        "string",
				Description: "The message text, optionally using #type: formatting blocks",
			},
			"color": {
				Type:        "string",
				Description: "Optional hex accent color for the message, e.g. #36a64f",
			},
		},
		Required: []string{"text"},
	}
}

func (p *PostMessage) Execute(ctx context.Context, tcx *runtime.ToolContext, params map[string]any) (string, error) {
	text, _ := params["text"].(string)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	accent := tcx.AccentColor
	if color, ok := params["color"].(string); ok && color != "" {
		accent = color
	}

	blocks := dsl.Parse(text)
	blocks = append(blocks, extraButtons(params)...)

	msg, groups := render.Assemble(blocks, accent)

	ts, err := tcx.Chat.SendMessage(ctx, tcx.Channel, tcx.ThreadTS, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	for i := range groups {
		groups[i].Channel = tcx.Channel
		groups[i].MessageTS = ts
		tcx.Thread.RegisterButtons(&groups[i])
	}

	tcx.Thread.AppendMessage(types.Message{Text: text, Role: types.RoleAssistant})
	return fmt.Sprintf("message posted (ts %s)", ts), nil
}

// extraButtons accepts a structured "buttons" parameter — the recovery
// path produces these when a malformed payload carried a button array
// outside the text grammar.
func extraButtons(params map[string]any) []dsl.RenderBlock {
	raw, ok := params["buttons"].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	var specs []types.ButtonSpec
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		spec := types.ButtonSpec{}
		spec.Label, _ = m["label"].(string)
		spec.Value, _ = m["value"].(string)
		spec.Style, _ = m["style"].(string)
		if spec.Label == "" && spec.Value == "" {
			continue
		}
		if spec.Value == "" {
			spec.Value = spec.Label
		}
		if spec.Label == "" {
			spec.Label = spec.Value
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil
	}
	return []dsl.RenderBlock{{Type: dsl.BlockButtons, Buttons: specs}}
}
