package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/user/slackclaw/internal/runtime"
)

// Finish signals the end of a turn. The orchestrator intercepts calls to
// it before dispatch; this implementation exists so the tool shows up in
// the schema advertised to the model.
type Finish struct{}

func NewFinish() *Finish { return &Finish{} }

func (f *Finish) Name() string { return "finish" }
func (f *Finish) Description() string {
	return "Signal that the current turn is handled and no further actions are needed"
}
func (f *Finish) Async() bool   { return false }
func (f *Finish) Visible() bool { return false }

func (f *Finish) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"summary": {
				Type:        "string",
				Description: "Optional one-line summary of what was done this turn",
			},
		},
	}
}

func (f *Finish) Execute(ctx context.Context, tcx *runtime.ToolContext, params map[string]any) (string, error) {
	return "done", nil
}
