package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_StripsSGRSequences(t *testing.T) {
	in := "\x1b[1;32mgreen\x1b[0m plain"
	assert.Equal(t, "green plain", Text(in))
}

func TestText_StripsCursorAndOSC(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"cursor movement", "a\x1b[2Jb", "ab"},
		{"osc title bel", "\x1b]0;my title\x07prompt$ ", "prompt$ "},
		{"osc title st", "\x1b]0;my title\x1b\\prompt$ ", "prompt$ "},
		{"8-bit csi", "x\x9b32my", "xy"},
		{"bare escape", "a\x1b(Bb", "ab"},
		{"trailing escape", "abc\x1b", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestText_KeepsRunesContaining9BByte(t *testing.T) {
	// 0x9B is an 8-bit CSI introducer only as a standalone byte. As a UTF-8
	// continuation byte it is character data: U+025B is C9 9B, Hebrew kaf is
	// D7 9B, 剛 is E5 89 9B. None of these may be stripped, and the
	// character after them must survive.
	tests := []struct {
		name, in, want string
	}{
		{"latin epsilon", "ɛabc", "ɛabc"},
		{"hebrew kaf", "כtov", "כtov"},
		{"cjk", "剛next", "剛next"},
		{"mixed with real csi", "ɛ\x1b[31m剛\x1b[0m", "ɛ剛"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestText_ControlFiltering(t *testing.T) {
	in := "a\x00b\x01c\td\ne\rf\x7fg"
	assert.Equal(t, "abc\td\ne\rfg", Text(in))
}

func TestText_GlyphSubstitution(t *testing.T) {
	assert.Equal(t, "+--+", Text("┌──┐"))
	assert.Equal(t, "-> done...", Text("→ done…"))
	assert.Equal(t, `"quoted"`, Text("“quoted”"))
	assert.Equal(t, "cafe 5EUR", Text("café 5€"))
	assert.Equal(t, "a b", Text("a b"))
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"\x1b[31mred\x1b[0m",
		"┌─┐ → • … é",
		"tabs\tand\nnewlines\r\n",
		"ctrl\x01\x02\x03chars",
		string([]byte{0xff, 0xfe, 'h', 'i'}),
	}
	for _, in := range inputs {
		once := Text(in)
		assert.Equal(t, once, Text(once), "input %q", in)
	}
}

func TestBytes_UTF8BOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	assert.Equal(t, "hello", Bytes(in, ""))
}

func TestBytes_UTF16BOMs(t *testing.T) {
	// "hi" in UTF-16LE with BOM
	le := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}
	assert.Equal(t, "hi", Bytes(le, ""))

	// "hi" in UTF-16BE with BOM
	be := []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}
	assert.Equal(t, "hi", Bytes(be, ""))
}

func TestBytes_InvalidUTF8ReplacedWithQuestionMark(t *testing.T) {
	// 0x80 is a bare continuation byte
	in := []byte("ab\x80cd")
	got := Bytes(in, "utf-8")
	assert.Equal(t, "ab?cd", got)
}

func TestBytes_Latin1Heuristic(t *testing.T) {
	// "café" in Latin-1: é = 0xE9, invalid as UTF-8 and followed by ASCII.
	in := []byte{'c', 'a', 'f', 0xE9, ' ', 'a', 'u', ' ', 'l', 'a', 'i', 't'}
	got := Bytes(in, "")
	// Decoded as Latin-1 é, then substituted to plain e by the glyph table.
	assert.Equal(t, "cafe au lait", got)
}

func TestBytes_DeclaredLatin1(t *testing.T) {
	in := []byte{0xE9}
	assert.Equal(t, "e", Bytes(in, "latin-1"))
}

func TestBytes_NeverPanicsAndPrintableOnly(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xFF, 0xFF, 0xFF},
		{0x1B},
		{0x1B, '['},
		{0xC3}, // truncated UTF-8 sequence
		{0xEF, 0xBB},
		append([]byte("\x1b]0;no terminator"), 0xFE),
		[]byte("normal text"),
	}
	for _, in := range inputs {
		var got string
		require.NotPanics(t, func() { got = Bytes(in, "") })
		for _, r := range got {
			if r == '\t' || r == '\n' || r == '\r' {
				continue
			}
			assert.GreaterOrEqual(t, int(r), 0x20, "input %v produced control rune %q", in, r)
			assert.NotEqual(t, rune(0x7F), r)
		}
	}
}

func TestBytes_RestOfTextIntactAroundBadByte(t *testing.T) {
	in := []byte("before \x80 after")
	assert.Equal(t, "before ? after", Bytes(in, "utf-8"))
}
