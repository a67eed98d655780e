// internal/interpret/interpreter.go
package interpret

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/user/slackclaw/internal/types"
	"github.com/user/slackclaw/pkg/llm"
)

// PostMessageTool is the tool synthesized when the model answers with
// plain text instead of a structured call.
const PostMessageTool = "post_message"

const implicitReasoning = "implicit: model answered with plain text"
const missingReasoning = "(no reasoning provided)"

// Interpret extracts the tool calls from one model response. It never
// fails: a response with free text but no structured calls yields one
// implicit post_message call, and a call whose argument payload resists
// every repair stage degrades to the minimal apology fallback. The result
// always contains at least one call unless the response was entirely
// empty.
func Interpret(resp *llm.Response) []types.ToolCall {
	if resp == nil {
		return nil
	}

	if len(resp.ToolCalls) == 0 {
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return nil
		}
		return []types.ToolCall{{
			Tool:       PostMessageTool,
			Reasoning:  implicitReasoning,
			Parameters: map[string]any{"text": text},
		}}
	}

	calls := make([]types.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, interpretOne(tc))
	}
	return calls
}

func interpretOne(tc llm.ToolCall) types.ToolCall {
	name := tc.Function.Name
	params := parseArguments(tc.Function.Arguments)

	call := types.ToolCall{Tool: name, Parameters: params}
	hoistNestedCall(&call)
	normalizeReasoning(&call)
	return call
}

// parseArguments turns a raw argument payload into a parameter map,
// walking the repair ladder: direct parse, conservative normalization,
// then the staged recovery chain.
func parseArguments(raw string) map[string]any {
	text := StripFences(raw)
	if strings.TrimSpace(text) == "" {
		return map[string]any{}
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(text), &params); err == nil {
		return params
	}

	normalized := Normalize(text)
	if err := json.Unmarshal([]byte(normalized), &params); err == nil {
		return params
	}

	// recovery stages work from the original text so a botched
	// normalization cannot poison them
	slog.Debug("tool arguments unparsable after normalization, entering recovery", "len", len(raw))
	return recoverParams(text)
}

// hoistNestedCall unwraps the shape where the outer object accidentally
// wraps another tool call: {"tool": "x", "parameters": {...}}. The nested
// name and parameters replace the outer ones; exactly one tool name
// survives per call.
func hoistNestedCall(call *types.ToolCall) {
	for i := 0; i < 3; i++ { // models occasionally double-wrap
		nested, ok := call.Parameters["parameters"].(map[string]any)
		if !ok {
			return
		}
		name, hasName := call.Parameters["tool"].(string)
		if !hasName {
			name, hasName = call.Parameters["name"].(string)
		}
		if !hasName {
			return
		}
		if r, ok := call.Parameters["reasoning"].(string); ok && call.Reasoning == "" {
			call.Reasoning = r
		}
		call.Tool = name
		call.Parameters = nested
	}
}

// normalizeReasoning enforces a single top-level reasoning string: a
// top-level value wins over one nested in the parameters, a nested-only
// value is hoisted, and an absent one is synthesized.
func normalizeReasoning(call *types.ToolCall) {
	nested, hasNested := call.Parameters["reasoning"].(string)
	if hasNested {
		delete(call.Parameters, "reasoning")
	}
	if call.Reasoning == "" && hasNested {
		call.Reasoning = nested
	}
	if call.Reasoning == "" {
		call.Reasoning = missingReasoning
	}
}
