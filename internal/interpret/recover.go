// internal/interpret/recover.go
package interpret

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// A recovery strategy inspects an argument payload that failed to parse
// and tries to salvage a usable parameter map. Strategies run in order;
// the first success wins, keeping each layer testable on its own.
type strategy func(raw string) (map[string]any, bool)

var strategies = []strategy{
	recoverRepairedJSON,
	recoverTextField,
	recoverButtonArray,
}

// recoverParams runs the staged recovery chain. It always returns a
// parameter map: when every strategy fails, the minimal safe fallback
// carrying a user-facing apology is produced.
func recoverParams(raw string) map[string]any {
	for _, s := range strategies {
		if params, ok := s(raw); ok {
			return params
		}
	}
	return fallbackParams()
}

const (
	fallbackText      = "Sorry, I had trouble putting that response together. Could you rephrase?"
	fallbackReasoning = "recovered: tool arguments were unusable after all repair stages"
)

func fallbackParams() map[string]any {
	return map[string]any{
		"text":      fallbackText,
		"reasoning": fallbackReasoning,
	}
}

// recoverRepairedJSON runs the aggressive third-party repairer over the
// payload. This fixes the long tail the conservative pass will not touch:
// single quotes, unbalanced braces, truncated output.
func recoverRepairedJSON(raw string) (map[string]any, bool) {
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(fixed), &params); err != nil {
		return nil, false
	}
	if len(params) == 0 {
		return nil, false
	}
	return params, true
}

var textFieldRe = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// recoverTextField pulls a "text" field value straight out of the raw
// payload, unescaping the common sequences.
func recoverTextField(raw string) (map[string]any, bool) {
	m := textFieldRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	text := unescapeCommon(m[1])
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	params := map[string]any{"text": text}
	if buttons, ok := extractButtons(raw); ok {
		params["buttons"] = buttons
	}
	return params, true
}

// recoverButtonArray salvages payloads that contain a button array but no
// recognizable text field.
func recoverButtonArray(raw string) (map[string]any, bool) {
	buttons, ok := extractButtons(raw)
	if !ok {
		return nil, false
	}
	return map[string]any{"text": "Please pick an option:", "buttons": buttons}, true
}

var buttonsKeyRe = regexp.MustCompile(`"?(buttons|actions)"?\s*:`)

// extractButtons locates a buttons/actions array in the raw payload and
// parses its entries. The array body is found by brace-depth matching, not
// by regex alone, since element values may contain nested braces. Entries
// may be JSON objects or the compact "Label|value|style" form.
func extractButtons(raw string) ([]any, bool) {
	loc := buttonsKeyRe.FindStringIndex(raw)
	if loc == nil {
		return nil, false
	}
	body, ok := bracketBody(raw[loc[1]:])
	if !ok {
		return nil, false
	}

	// JSON-looking array first, repaired if needed.
	if fixed, err := jsonrepair.JSONRepair(body); err == nil {
		var items []any
		if err := json.Unmarshal([]byte(fixed), &items); err == nil && len(items) > 0 {
			return normalizeButtonItems(items), true
		}
	}

	// Compact bracket syntax: [Yes|yes|primary, No|no]
	inner := strings.TrimSpace(body)
	inner = strings.TrimPrefix(inner, "[")
	inner = strings.TrimSuffix(inner, "]")
	var items []any
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, pipeTripleToButton(part))
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// bracketBody returns the leading "[...]" span of s, tracking bracket,
// brace, and string nesting so values containing delimiters survive.
func bracketBody(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// normalizeButtonItems coerces mixed array entries into button maps.
func normalizeButtonItems(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, normalizeButtonObject(v))
		case string:
			out = append(out, pipeTripleToButton(v))
		}
	}
	return out
}

func normalizeButtonObject(m map[string]any) map[string]any {
	btn := map[string]any{}
	if label, ok := firstString(m, "label", "text", "title"); ok {
		btn["label"] = label
	}
	if value, ok := firstString(m, "value", "action", "id"); ok {
		btn["value"] = value
	}
	if style, ok := firstString(m, "style"); ok {
		btn["style"] = style
	}
	if _, ok := btn["value"]; !ok {
		if label, ok := btn["label"]; ok {
			btn["value"] = label
		}
	}
	return btn
}

func pipeTripleToButton(s string) map[string]any {
	fields := strings.SplitN(s, "|", 3)
	btn := map[string]any{"label": strings.TrimSpace(fields[0])}
	if len(fields) > 1 {
		btn["value"] = strings.TrimSpace(fields[1])
	} else {
		btn["value"] = btn["label"]
	}
	if len(fields) > 2 {
		btn["style"] = strings.ToLower(strings.TrimSpace(fields[2]))
	}
	return btn
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
