// internal/dsl/parser.go
package dsl

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/user/slackclaw/internal/types"
)

// Parse converts DSL source text into an ordered list of render blocks.
// The grammar is line oriented: a line of the form "#type: content" opens a
// block, continuation lines extend it, and content may carry |-delimited
// key:value sub-parameters plus bracketed arrays. Parse never fails: text
// with no block markers at all becomes a single plain Section, and a
// segment whose type is unknown is skipped with a diagnostic.
func Parse(source string) []RenderBlock {
	segments := splitSegments(source)
	if len(segments) == 0 {
		text := strings.TrimSpace(source)
		if text == "" {
			return nil
		}
		return []RenderBlock{{Type: BlockSection, Text: text}}
	}

	var blocks []RenderBlock
	for _, seg := range segments {
		block, ok := parseSegment(seg)
		if !ok {
			slog.Warn("skipping unknown block type", "type", seg.kind)
			continue
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// segment is one raw "#type: content" declaration.
type segment struct {
	kind    string
	content string
}

var markerRe = regexp.MustCompile(`^#([A-Za-z_]+):?\s*(.*)$`)

// splitSegments walks the source line by line. A "#type:" marker opens a
// new segment; other lines extend the current one. Leading prose before
// the first marker yields no segments, which triggers the plain-Section
// fallback in Parse.
func splitSegments(source string) []segment {
	var segments []segment
	current := -1

	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := markerRe.FindStringSubmatch(trimmed); m != nil {
			segments = append(segments, segment{kind: strings.ToLower(m[1]), content: m[2]})
			current = len(segments) - 1
			continue
		}
		if current >= 0 && trimmed != "" {
			segments[current].content += "\n" + trimmed
		}
	}
	return segments
}

func parseSegment(seg segment) (RenderBlock, bool) {
	main, params := splitParams(seg.content)

	switch BlockType(seg.kind) {
	case BlockSection:
		block := RenderBlock{Type: BlockSection, Text: main, Color: params["color"]}
		if url, ok := params["image"]; ok && url != "" {
			// A section carrying an image reference is promoted to the
			// combined variant.
			block.Type = BlockSectionImage
			block.URL = url
			block.Alt = altOr(params, main)
		}
		return block, true

	case BlockHeader:
		return RenderBlock{Type: BlockHeader, Text: main, Color: params["color"]}, true

	case BlockContext:
		return RenderBlock{Type: BlockContext, Text: main, Color: params["color"]}, true

	case BlockDivider:
		return RenderBlock{Type: BlockDivider}, true

	case BlockImage:
		url := main
		if u, ok := params["url"]; ok && u != "" {
			url = u
		}
		return RenderBlock{Type: BlockImage, URL: url, Alt: altOr(params, url), Color: params["color"]}, true

	case BlockButtons:
		buttons := parseButtonArray(seg.content)
		if len(buttons) == 0 {
			// Malformed button content degrades to plain text rather
			// than aborting the parse.
			return RenderBlock{Type: BlockSection, Text: strings.TrimSpace(seg.content)}, true
		}
		return RenderBlock{Type: BlockButtons, Buttons: buttons, Prefix: params["prefix"], Color: params["color"]}, true

	case BlockFields:
		fields := parseFieldArray(seg.content)
		if len(fields) == 0 {
			return RenderBlock{Type: BlockSection, Text: strings.TrimSpace(seg.content)}, true
		}
		return RenderBlock{Type: BlockFields, Fields: fields, Color: params["color"]}, true
	}

	return RenderBlock{}, false
}

func altOr(params map[string]string, fallback string) string {
	if alt, ok := params["alt"]; ok && alt != "" {
		return alt
	}
	return fallback
}

// splitParams separates the main content from trailing key:value
// sub-parameters. Pipes inside bracketed arrays do not split.
func splitParams(content string) (string, map[string]string) {
	parts := splitTopLevel(content, '|')
	params := make(map[string]string)
	if len(parts) == 0 {
		return "", params
	}

	main := strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return main, params
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// brackets. The scan is character by character so values containing the
// separator survive intact.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseButtonArray extracts "[Label|value|style, ...]" triples. Style is
// optional. An item with no pipe at all is a comma that belonged inside
// the neighboring item's text, so it is merged forward instead of becoming
// a bogus button.
func parseButtonArray(content string) []types.ButtonSpec {
	inner, ok := bracketInner(content)
	if !ok {
		return nil
	}

	items := mergePipeless(splitTopLevel(inner, ','))

	var buttons []types.ButtonSpec
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fields := strings.SplitN(item, "|", 3)
		spec := types.ButtonSpec{Label: strings.TrimSpace(fields[0])}
		if len(fields) > 1 {
			spec.Value = strings.TrimSpace(fields[1])
		} else {
			spec.Value = spec.Label
		}
		if len(fields) > 2 {
			spec.Style = strings.ToLower(strings.TrimSpace(fields[2]))
		}
		buttons = append(buttons, spec)
	}
	return buttons
}

// parseFieldArray extracts "[Title|Value, ...]" pairs.
func parseFieldArray(content string) []Field {
	inner, ok := bracketInner(content)
	if !ok {
		return nil
	}

	items := mergePipeless(splitTopLevel(inner, ','))

	var fields []Field
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		title, value, _ := strings.Cut(item, "|")
		fields = append(fields, Field{Title: strings.TrimSpace(title), Value: strings.TrimSpace(value)})
	}
	return fields
}

// bracketInner returns the text between the first '[' and its matching
// closing ']'. A missing closing bracket is tolerated by taking the rest
// of the string.
func bracketInner(content string) (string, bool) {
	open := strings.IndexByte(content, '[')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(content); i++ {
		switch content[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return content[open+1 : i], true
			}
		}
	}
	return content[open+1:], true
}

// mergePipeless joins comma-split fragments that contain no pipe into the
// following item, recovering commas that were embedded inside a label.
func mergePipeless(items []string) []string {
	var out []string
	carry := ""
	for _, item := range items {
		if carry != "" {
			item = carry + "," + item
			carry = ""
		}
		if !strings.Contains(item, "|") {
			carry = item
			continue
		}
		out = append(out, item)
	}
	if carry != "" {
		out = append(out, carry)
	}
	return out
}
