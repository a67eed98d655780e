// internal/dsl/blocks.go
package dsl

import "github.com/user/slackclaw/internal/types"

// BlockType enumerates the rendering block variants the grammar can declare.
type BlockType string

const (
	BlockSection      BlockType = "section"
	BlockHeader       BlockType = "header"
	BlockContext      BlockType = "context"
	BlockDivider      BlockType = "divider"
	BlockImage        BlockType = "image"
	BlockButtons      BlockType = "buttons"
	BlockFields       BlockType = "fields"
	BlockSectionImage BlockType = "section_image"
)

// Field is one title/value pair of a field-list block.
type Field struct {
	Title string
	Value string
}

// RenderBlock is the platform-agnostic representation of one visual
// element. Which attributes are meaningful depends on Type; unused ones
// stay zero.
type RenderBlock struct {
	Type    BlockType
	Text    string
	URL     string
	Alt     string
	Color   string
	Prefix  string
	Buttons []types.ButtonSpec
	Fields  []Field
}
