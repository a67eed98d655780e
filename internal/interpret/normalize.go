// internal/interpret/normalize.go
package interpret

import (
	"regexp"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

// StripFences removes enclosing Markdown code-fence markers, with or
// without a language tag, leaving other text untouched.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// drop the language tag line ("json", "javascript", ...)
		first := strings.TrimSpace(trimmed[:i])
		if len(first) <= 12 && !strings.ContainsAny(first, "{}[]\"") {
			trimmed = trimmed[i+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// Normalize applies the conservative repair pass for almost-JSON: literal
// newlines and tabs inside quoted strings are escaped, and trailing commas
// are dropped and bare object keys quoted in the structural text between
// strings. Quoted content is never rewritten, so a value like
// "All set, status: green" survives intact. String boundaries are tracked
// by a single forward scan that treats each unescaped quote as a toggle;
// if the scan ends inside an unterminated string the input is returned
// unchanged, because any rewrite at that point would be guesswork.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	// structural characters accumulate here until the next string opens,
	// then get the comma/key rewrites as one segment
	var seg strings.Builder
	flush := func() {
		b.WriteString(repairStructural(seg.String()))
		seg.Reset()
	}

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				b.WriteByte(c)
				escaped = false
			case c == '\\':
				b.WriteByte(c)
				escaped = true
			case c == '"':
				b.WriteByte(c)
				inString = false
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				// swallowed; the paired \n produces the escape
			case c == '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			flush()
			b.WriteByte(c)
			inString = true
		case '\t':
			seg.WriteByte(' ')
		default:
			seg.WriteByte(c)
		}
	}

	if inString {
		return s
	}
	flush()
	return b.String()
}

// repairStructural rewrites one out-of-string segment: trailing commas
// before a closing brace or bracket are dropped, bare object keys are
// quoted. Only ever called on text the scanner proved is outside strings.
func repairStructural(seg string) string {
	seg = trailingCommaRe.ReplaceAllString(seg, "$1")
	return bareKeyRe.ReplaceAllString(seg, `$1"$2"$3`)
}

// unescapeCommon undoes the escape sequences that matter when a string
// value has been pulled out of raw JSON text by regex rather than a parser.
var commonUnescaper = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\"`, `"`,
	`\\`, `\`,
)

func unescapeCommon(s string) string {
	return commonUnescaper.Replace(s)
}
