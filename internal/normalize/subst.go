package normalize

import "strings"

// glyphTable maps lookalike and problem glyphs to safe renderable
// equivalents. Box-drawing characters and arrows come through SSH banners
// and TUI fragments; smart punctuation comes from pasted text; the accented
// letters cover the common mojibake cases when a remote locale disagrees
// with the client.
var glyphTable = map[rune]string{
	// Box drawing
	'─': "-", '━': "-", '│': "|", '┃': "|",
	'┌': "+", '┐': "+", '└': "+", '┘': "+",
	'├': "+", '┤': "+", '┬': "+", '┴': "+", '┼': "+",
	'╭': "+", '╮': "+", '╯': "+", '╰': "+",
	'═': "=", '║': "|", '╔': "+", '╗': "+", '╚': "+", '╝': "+",
	'▀': "#", '▄': "#", '█': "#", '░': ".", '▒': ":", '▓': "#",

	// Arrows
	'→': "->", '←': "<-", '↑': "^", '↓': "v",
	'⇒': "=>", '⇐': "<=",

	// Bullets and punctuation
	'•': "*", '◦': "o", '▪': "*", '●': "*",
	'…': "...",
	'–': "-", '—': "-",
	'‘': "'", '’': "'",
	'“': `"`, '”': `"`,
	' ': " ", // NBSP

	// Currency
	'€': "EUR", '£': "GBP", '¥': "JPY", '¢': "c",

	// Common accented Latin letters
	'á': "a", 'à': "a", 'â': "a", 'ä': "a", 'ã': "a", 'å': "a",
	'é': "e", 'è': "e", 'ê': "e", 'ë': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ï': "i",
	'ó': "o", 'ò': "o", 'ô': "o", 'ö': "o", 'õ': "o",
	'ú': "u", 'ù': "u", 'û': "u", 'ü': "u",
	'ñ': "n", 'ç': "c",
	'Á': "A", 'À': "A", 'Â': "A", 'Ä': "A",
	'É': "E", 'È': "E", 'Ê': "E", 'Ë': "E",
	'Í': "I", 'Ì': "I", 'Î': "I", 'Ï': "I",
	'Ó': "O", 'Ò': "O", 'Ô': "O", 'Ö': "O",
	'Ú': "U", 'Ù': "U", 'Û': "U", 'Ü': "U",
	'Ñ': "N", 'Ç': "C",
}

// substituteGlyphs rewrites problem glyphs via the table in one pass.
// Runes without a table entry pass through unchanged.
func substituteGlyphs(s string) string {
	// Fast path: all ASCII means nothing to substitute.
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := glyphTable[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
