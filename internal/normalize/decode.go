package normalize

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decode converts raw bytes to a string, never failing: undecodable bytes
// become '?'. Resolution order is declared encoding, BOM, then a heuristic
// score of UTF-8 validity against Latin-1 plausibility.
func decode(b []byte, declared string) string {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "utf-8", "utf8", "ascii", "":
		// fall through to sniffing for "", tolerant UTF-8 otherwise
		if declared != "" {
			return decodeUTF8(b)
		}
	case "utf-16le", "utf16le":
		return decodeWith(b, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
	case "utf-16be", "utf16be":
		return decodeWith(b, unicode.UTF16(unicode.BigEndian, unicode.UseBOM))
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return decodeWith(b, charmap.ISO8859_1)
	default:
		// Unknown declared encoding: fall back to sniffing.
	}

	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return decodeUTF8(b[len(bomUTF8):])
	case bytes.HasPrefix(b, bomUTF16LE):
		return decodeWith(b, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))
	case bytes.HasPrefix(b, bomUTF16BE):
		return decodeWith(b, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM))
	}

	if utf8.Valid(b) {
		return string(b)
	}
	if scoreUTF8(b) >= scoreLatin1(b) {
		return decodeUTF8(b)
	}
	return decodeWith(b, charmap.ISO8859_1)
}

// decodeUTF8 decodes tolerantly, replacing each invalid byte with '?'.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteByte('?')
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}

// decodeWith decodes via an x/text encoding, falling back to the tolerant
// UTF-8 path if the decoder itself errors.
func decodeWith(b []byte, enc encoding.Encoding) string {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		log.Warn("decoder_error", "error", err)
		return decodeUTF8(b)
	}
	return string(out)
}

// scoreUTF8 counts bytes covered by well-formed multi-byte UTF-8 sequences.
func scoreUTF8(b []byte) int {
	score := 0
	for i := 0; i < len(b); {
		if b[i] < 0x80 {
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r != utf8.RuneError && size > 1 {
			score += size
		}
		if size == 0 {
			size = 1
		}
		i += size
	}
	return score
}

// scoreLatin1 counts high bytes that map to printable Latin-1 characters
// (0xA0-0xFF; the 0x80-0x9F range is C1 controls, which real Latin-1 text
// essentially never contains).
func scoreLatin1(b []byte) int {
	score := 0
	for _, c := range b {
		if c >= 0xA0 {
			score++
		}
	}
	return score
}
