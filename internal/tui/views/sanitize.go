package views

import (
	"strings"
	"unicode"
)

// sanitizeForTerminal drops codepoints tcell renders with the wrong width:
// emoji skin tone modifiers, zero width joiners and variation selectors. A
// thumbs up with a skin tone becomes a plain thumbs up.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case isProblematicRune(r), unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// sanitizeLine is sanitizeForTerminal folded onto one line for table cells.
func sanitizeLine(s string) string {
	return strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
}
