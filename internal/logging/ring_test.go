package logging

import (
	"strings"
	"testing"
)

func TestLineRing_Basic(t *testing.T) {
	r := NewLineRing(10)
	r.Write([]byte("one\ntwo\n"))

	if r.Len() != 2 {
		t.Errorf("expected 2 lines, got %d", r.Len())
	}
	got := string(r.Bytes())
	if got != "one\ntwo\n" {
		t.Errorf("unexpected contents: %q", got)
	}
}

func TestLineRing_EvictsOldest(t *testing.T) {
	r := NewLineRing(3)
	r.Write([]byte("a\nb\nc\nd\n"))

	got := string(r.Bytes())
	if got != "b\nc\nd\n" {
		t.Errorf("expected oldest line evicted, got %q", got)
	}
	if r.Len() != 3 {
		t.Errorf("expected 3 lines, got %d", r.Len())
	}
}

func TestLineRing_PartialLineAcrossWrites(t *testing.T) {
	r := NewLineRing(10)
	r.Write([]byte("hel"))
	r.Write([]byte("lo\nwor"))

	if r.Len() != 1 {
		t.Errorf("expected 1 complete line, got %d", r.Len())
	}
	got := string(r.Bytes())
	if got != "hello\nwor" {
		t.Errorf("expected partial fragment preserved, got %q", got)
	}
}

func TestLineRing_LargeBurst(t *testing.T) {
	r := NewLineRing(100)
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("line\n")
	}
	r.Write([]byte(b.String()))

	if r.Len() != 100 {
		t.Errorf("expected ring capped at 100, got %d", r.Len())
	}
}
