package normalize

import (
	"strings"
	"unicode/utf8"
)

// stripANSI removes ANSI escape sequences in a single O(n) pass: CSI
// sequences (colors, styles, cursor movement), OSC sequences (window title
// updates, terminated by BEL or ST) and bare two-byte escapes. Inline color
// is not rendered by block buffers, so the codes are display garbage.
//
// Input at this stage is decoded text, so a 0x9B byte inside a valid UTF-8
// rune is character data, not an 8-bit CSI introducer. Only a standalone
// invalid 0x9B byte is stripped as a stray CSI.
//
// Deliberately not regex-based: complex ANSI regexes can backtrack
// catastrophically on malformed sequences in hostile output.
func stripANSI(s string) string {
	// Fast path when no ESC or 8-bit CSI byte is present.
	if strings.IndexByte(s, 0x1B) < 0 && strings.IndexByte(s, 0x9B) < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c == 0x1B {
			i = skipEscape(s, i)
			continue
		}
		if c < utf8.RuneSelf {
			b.WriteByte(c)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 && c == 0x9B {
			i = skipCSIBody(s, i+1)
			continue
		}
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// skipEscape consumes one escape sequence starting at the ESC byte and
// returns the index of the first byte after it.
func skipEscape(s string, i int) int {
	if i+1 >= len(s) {
		return len(s)
	}
	switch s[i+1] {
	case '[':
		return skipCSIBody(s, i+2)
	case ']':
		return skipOSC(s, i)
	default:
		// Two-byte escape (charset selection, keypad modes, ...)
		return i + 2
	}
}

// skipCSIBody consumes parameter and intermediate bytes up to and including
// the final letter of a CSI sequence.
func skipCSIBody(s string, i int) int {
	for i < len(s) {
		c := s[i]
		i++
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return i
		}
	}
	return i
}

// skipOSC consumes an OSC sequence terminated by BEL or ST (ESC \). An
// unterminated OSC swallows the rest of the chunk; the terminator may arrive
// in the next chunk, but chunk-spanning sequences are rare enough that the
// truncation is acceptable.
func skipOSC(s string, i int) int {
	rest := s[i:]
	if bell := strings.IndexByte(rest, 0x07); bell >= 0 {
		return i + bell + 1
	}
	if st := strings.Index(rest, "\x1b\\"); st >= 0 {
		return i + st + 2
	}
	return len(s)
}
