// Package normalize repairs terminal output before it is appended to a
// block's buffer: byte decoding with encoding detection, lookalike-glyph
// substitution, control-character filtering and ANSI escape stripping.
//
// Every entry point is total: no input, however malformed, causes an error
// or panic. Failed stages degrade to a conservative sanitization pass.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/devpocket/termcore/internal/logging"
)

var log = logging.ForComponent(logging.CompNormalize)

// Text normalizes an already-decoded string for display: ANSI sequences are
// removed, problem glyphs substituted, and non-printable control characters
// dropped (tab, LF and CR survive). Idempotent.
func Text(s string) string {
	return runPipeline(s)
}

// Bytes decodes raw transport bytes and normalizes the result. declared may
// name the source encoding ("utf-8", "utf-16le", "utf-16be", "latin-1",
// "iso-8859-1", "ascii"); when empty the encoding is sniffed from the data.
func Bytes(b []byte, declared string) string {
	if len(b) == 0 {
		return ""
	}
	return runPipeline(decode(b, declared))
}

// runPipeline applies the display stages in order. A panic inside any stage
// skips that stage and lets the pre-stage value flow through; the control
// filter runs last and guarantees printable-only output.
func runPipeline(s string) string {
	s = guarded("strip_ansi", s, stripANSI)
	s = guarded("substitute", s, substituteGlyphs)
	s = guarded("filter_control", s, filterControl)
	if !isDisplaySafe(s) {
		// A stage panicked before the control filter could run.
		s = conservativeSanitize(s)
	}
	return s
}

// guarded runs one stage with panic recovery.
func guarded(name, in string, stage func(string) string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("normalize_stage_panic", "stage", name, "panic", r)
			out = in
		}
	}()
	return stage(in)
}

// filterControl drops every C0 control code except tab, LF and CR, drops
// DEL, and replaces invalid rune encodings with '?'.
func filterControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte('?')
			i++
			continue
		}
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F):
			// C0, DEL and C1 controls are dropped
		default:
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// isDisplaySafe reports whether s contains only printable runes plus
// tab/LF/CR and is valid UTF-8.
func isDisplaySafe(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return false
		}
	}
	return true
}

// conservativeSanitize is the last-resort pass: keep printable ASCII and
// high-range bytes that decode cleanly, replace everything else with '?'.
func conservativeSanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteByte('?')
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r >= 0x20 && r != 0x7F && !(r >= 0x80 && r <= 0x9F):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}
