// internal/render/assembler.go
package render

import (
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/user/slackclaw/internal/dsl"
	"github.com/user/slackclaw/internal/types"
)

const (
	maxFallbackChars = 150
	maxHeaderChars   = 150
	defaultFallback  = "New message"
)

// Assemble turns parsed render blocks into a platform payload. Blocks that
// carry no color of their own take accentColor; blocks sharing an
// effective color are grouped into one attachment in first-seen order,
// and each distinct color gets its own attachment. Blocks with no color
// at all stay top-level. Assemble is pure: it performs no network calls
// and registers nothing.
//
// The returned button groups mirror every ButtonGroup block in the input,
// with Channel/MessageTS left blank for the caller to fill in after the
// send succeeds.
func Assemble(blocks []dsl.RenderBlock, accentColor string) (*types.ChatMessage, []types.ButtonGroup) {
	msg := &types.ChatMessage{}
	var groups []types.ButtonGroup

	// attachment index by color, preserving first-seen order
	colorIndex := make(map[string]int)

	for _, block := range blocks {
		native, group := toNative(block)
		if native == nil {
			continue
		}
		if group != nil {
			groups = append(groups, *group)
		}

		color := block.Color
		if color == "" {
			color = accentColor
		}
		if color == "" {
			msg.Blocks = append(msg.Blocks, native)
			continue
		}

		idx, ok := colorIndex[color]
		if !ok {
			idx = len(msg.Attachments)
			colorIndex[color] = idx
			msg.Attachments = append(msg.Attachments, slack.Attachment{Color: color})
		}
		att := &msg.Attachments[idx]
		att.Blocks.BlockSet = append(att.Blocks.BlockSet, native)
	}

	msg.Fallback = fallbackText(blocks)
	return msg, groups
}

// toNative converts one render block to its Block Kit equivalent. The
// second return value is non-nil for button groups so the caller can track
// the generated action identifiers.
func toNative(block dsl.RenderBlock) (slack.Block, *types.ButtonGroup) {
	switch block.Type {
	case dsl.BlockHeader:
		return slack.NewHeaderBlock(plainText(truncate(block.Text, maxHeaderChars))), nil

	case dsl.BlockSection:
		return slack.NewSectionBlock(mrkdwnText(block.Text), nil, nil), nil

	case dsl.BlockSectionImage:
		accessory := slack.NewAccessory(slack.NewImageBlockElement(block.URL, block.Alt))
		return slack.NewSectionBlock(mrkdwnText(block.Text), nil, accessory), nil

	case dsl.BlockContext:
		return slack.NewContextBlock("", mrkdwnText(block.Text)), nil

	case dsl.BlockDivider:
		return slack.NewDividerBlock(), nil

	case dsl.BlockImage:
		return slack.NewImageBlock(block.URL, block.Alt, "", nil), nil

	case dsl.BlockFields:
		fields := make([]*slack.TextBlockObject, 0, len(block.Fields))
		for _, f := range block.Fields {
			fields = append(fields, mrkdwnText("*"+f.Title+"*\n"+f.Value))
		}
		return slack.NewSectionBlock(nil, fields, nil), nil

	case dsl.BlockButtons:
		return buttonsBlock(block)
	}
	return nil, nil
}

func buttonsBlock(block dsl.RenderBlock) (slack.Block, *types.ButtonGroup) {
	prefix := block.Prefix
	if prefix == "" {
		prefix = types.NewActionPrefix()
	}

	group := &types.ButtonGroup{Prefix: prefix, Buttons: block.Buttons}

	elements := make([]slack.BlockElement, 0, len(block.Buttons))
	for i, spec := range block.Buttons {
		actionID := string(types.NewActionID(prefix, i))
		label := slack.NewTextBlockObject(slack.PlainTextType, spec.Label, true, false)

		var btn *slack.ButtonBlockElement
		if isAbsoluteURL(spec.Value) {
			btn = slack.NewButtonBlockElement(actionID, "", label)
			btn.URL = spec.Value
		} else {
			btn = slack.NewButtonBlockElement(actionID, spec.Value, label)
		}

		switch spec.Style {
		case "primary":
			btn.Style = slack.StylePrimary
		case "danger":
			btn.Style = slack.StyleDanger
		}

		elements = append(elements, btn)
	}

	return slack.NewActionBlock(prefix, elements...), group
}

// fallbackText derives the notification-safe summary from the first block
// that carries text. It is always short and non-empty and never repeats
// the full rich content.
func fallbackText(blocks []dsl.RenderBlock) string {
	for _, block := range blocks {
		if block.Text != "" {
			return truncate(firstLine(block.Text), maxFallbackChars)
		}
	}
	return defaultFallback
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// never cut mid-rune; Slack rejects invalid UTF-8
	cut := max - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func plainText(s string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, s, true, false)
}

func mrkdwnText(s string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, s, false, false)
}
