package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// truncationNotice marks where a newsletter body was cut for the matcher
const truncationNotice = "\n[... newsletter body truncated ...]"

// TextProcessor prepares newsletter bodies for the category matchers:
// collapses the spacer-line padding bulk templates emit, bounds the size
// and keeps the result valid UTF-8.
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// CollapseBlankLines reduces runs of blank lines to a single one.
// Newsletter templates pad sections with spacer lines that would waste
// the matcher's body budget.
func (tp *TextProcessor) CollapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	collapsed := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			collapsed = append(collapsed, "")
			continue
		}
		blank = false
		collapsed = append(collapsed, line)
	}
	return strings.Join(collapsed, "\n")
}

// TruncateText truncates a newsletter body to the byte limit without
// splitting a UTF-8 sequence, appending a notice so the matcher knows
// the body is partial
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Newsletter body truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + truncationNotice
}

// SanitizeUTF8 drops invalid UTF-8 sequences, which newsletters with
// mis-declared charsets produce routinely
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Newsletter body sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// ProcessText collapses padding, truncates and sanitizes in one pass
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	collapsed := tp.CollapseBlankLines(text)
	truncated := tp.TruncateText(collapsed, maxSize)
	return tp.SanitizeUTF8(truncated)
}
