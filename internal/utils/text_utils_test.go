package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
)

func TestCollapseBlankLines(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	body := "Top story\n\n\n\n   \nSecond story\n\nFooter"
	got := tp.CollapseBlankLines(body)
	want := "Top story\n\nSecond story\n\nFooter"
	if got != want {
		t.Errorf("collapsed = %q, want %q", got, want)
	}

	if got := tp.CollapseBlankLines("no padding at all"); got != "no padding at all" {
		t.Errorf("collapsed = %q", got)
	}
}

func TestTruncateTextKeepsValidUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	// Cut in the middle of a multi-byte rune
	body := strings.Repeat("a", 9) + "é"
	got := tp.TruncateText(body, 10)
	if !utf8.ValidString(got) {
		t.Errorf("truncated text is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("truncated text carries no notice: %q", got)
	}

	if got := tp.TruncateText("short", 100); got != "short" {
		t.Errorf("text within the limit changed: %q", got)
	}
	if got := tp.TruncateText("unlimited", 0); got != "unlimited" {
		t.Errorf("zero limit changed the text: %q", got)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	got := tp.SanitizeUTF8("good\xffbad")
	if !utf8.ValidString(got) {
		t.Errorf("sanitized text is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, "good") || !strings.Contains(got, "bad") {
		t.Errorf("sanitize dropped valid content: %q", got)
	}
}

func TestProcessText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	body := "Headline\n\n\n\nBody text"
	got := tp.ProcessText(body, 1000)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("padding survived processing: %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("processed text is not valid UTF-8: %q", got)
	}
}
