package dsl

import (
	"testing"
)

func TestParseHeaderSectionButtons(t *testing.T) {
	src := "#header: Hi\n\n#section: Pick one\n\n#buttons:[Yes|yes|primary, No|no]"

	blocks := Parse(src)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}

	if blocks[0].Type != BlockHeader || blocks[0].Text != "Hi" {
		t.Errorf("block 0: expected header %q, got %+v", "Hi", blocks[0])
	}
	if blocks[1].Type != BlockSection || blocks[1].Text != "Pick one" {
		t.Errorf("block 1: expected section %q, got %+v", "Pick one", blocks[1])
	}
	if blocks[2].Type != BlockButtons {
		t.Fatalf("block 2: expected buttons, got %+v", blocks[2])
	}
	if len(blocks[2].Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(blocks[2].Buttons))
	}
	if blocks[2].Buttons[0].Style != "primary" {
		t.Errorf("button 0: expected style primary, got %q", blocks[2].Buttons[0].Style)
	}
	if blocks[2].Buttons[1].Label != "No" || blocks[2].Buttons[1].Value != "no" {
		t.Errorf("button 1: got %+v", blocks[2].Buttons[1])
	}
	if blocks[2].Buttons[1].Style != "" {
		t.Errorf("button 1: expected no style, got %q", blocks[2].Buttons[1].Style)
	}
}

func TestParsePlainTextFallback(t *testing.T) {
	blocks := Parse("just a regular reply with no markers")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Type != BlockSection {
		t.Errorf("expected section fallback, got %v", blocks[0].Type)
	}
	if blocks[0].Text != "just a regular reply with no markers" {
		t.Errorf("fallback text mangled: %q", blocks[0].Text)
	}
}

func TestParseUnknownTypeSkipped(t *testing.T) {
	src := "#header: Title\n#wibble: nonsense\n#section: Body"
	blocks := Parse(src)
	if len(blocks) != 2 {
		t.Fatalf("expected unknown block dropped, got %d blocks", len(blocks))
	}
	if blocks[0].Type != BlockHeader || blocks[1].Type != BlockSection {
		t.Errorf("surviving blocks out of order: %+v", blocks)
	}
}

func TestParseCaseInsensitiveTypes(t *testing.T) {
	blocks := Parse("#HEADER: Loud\n#Section: quiet")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Type != BlockHeader || blocks[1].Type != BlockSection {
		t.Errorf("case-insensitive resolution failed: %+v", blocks)
	}
}

func TestParseSectionWithImagePromoted(t *testing.T) {
	blocks := Parse("#section: Check this out | image:https://example.com/cat.png | alt:a cat")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if b.Type != BlockSectionImage {
		t.Fatalf("expected section_image, got %v", b.Type)
	}
	if b.Text != "Check this out" || b.URL != "https://example.com/cat.png" || b.Alt != "a cat" {
		t.Errorf("promoted block wrong: %+v", b)
	}
}

func TestParseButtonsWithEmbeddedComma(t *testing.T) {
	blocks := Parse("#buttons:[Yes, please|yes|primary, No|no]")
	if len(blocks) != 1 || blocks[0].Type != BlockButtons {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
	buttons := blocks[0].Buttons
	if len(buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d: %+v", len(buttons), buttons)
	}
	if buttons[0].Label != "Yes, please" || buttons[0].Value != "yes" {
		t.Errorf("comma-bearing label mangled: %+v", buttons[0])
	}
}

func TestParseFields(t *testing.T) {
	blocks := Parse("#fields:[Status|Running, Region|us-east-1]")
	if len(blocks) != 1 || blocks[0].Type != BlockFields {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
	fields := blocks[0].Fields
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Title != "Status" || fields[0].Value != "Running" {
		t.Errorf("field 0 wrong: %+v", fields[0])
	}
}

func TestParseDividerAndImage(t *testing.T) {
	blocks := Parse("#section: above\n#divider\n#image: https://example.com/x.png | alt:pic")
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[1].Type != BlockDivider {
		t.Errorf("expected divider, got %v", blocks[1].Type)
	}
	if blocks[2].Type != BlockImage || blocks[2].URL != "https://example.com/x.png" || blocks[2].Alt != "pic" {
		t.Errorf("image block wrong: %+v", blocks[2])
	}
}

func TestParseMalformedButtonsDegradesToSection(t *testing.T) {
	blocks := Parse("#buttons: no brackets here")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Type != BlockSection {
		t.Errorf("expected section fallback, got %v", blocks[0].Type)
	}
}

func TestParseMultilineSection(t *testing.T) {
	blocks := Parse("#section: first line\nsecond line")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Text != "first line\nsecond line" {
		t.Errorf("continuation lost: %q", blocks[0].Text)
	}
}

func TestParsePerBlockColor(t *testing.T) {
	blocks := Parse("#section: good news | color:#36a64f\n#section: bad news | color:#d00000")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Color != "#36a64f" || blocks[1].Color != "#d00000" {
		t.Errorf("colors not captured: %+v", blocks)
	}
}

func TestParseEmptyInput(t *testing.T) {
	if blocks := Parse(""); blocks != nil {
		t.Errorf("expected nil for empty input, got %+v", blocks)
	}
}
