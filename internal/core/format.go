package core

import (
	"regexp"
	"strings"
)

var (
	reMultiNewline   = regexp.MustCompile(`\n{3,}`)
	reStageDirection = regexp.MustCompile(`\n(（[^）]*）)\n`)
	reStrayNewline   = regexp.MustCompile(`([^\n])\n([^\n])`)
	// break after sentence-ending punctuation unless the next rune is a
	// closing bracket (keeps 「…。」 on one line)
	reSentenceEnd = regexp.MustCompile(`([。！？])([^\n」』）])`)
)

// FormatReply normalizes raw LLM output into display-ready text:
// paragraph breaks survive, stray mid-sentence newlines are merged,
// Japanese sentence endings get their own line, and blank lines are
// dropped. The pass pipeline runs to a fixpoint, so
// FormatReply(FormatReply(x)) == FormatReply(x).
func FormatReply(raw string) string {
	for {
		next := formatPass(raw)
		if next == raw {
			return next
		}
		raw = next
	}
}

func formatPass(raw string) string {
	text := reMultiNewline.ReplaceAllString(raw, "\n\n")

	// keep parenthetical stage directions on the same line as the
	// sentence they belong to
	text = reStageDirection.ReplaceAllString(text, "$1 ")

	text = replaceUntilStable(reStrayNewline, text, "$1 $2")
	text = replaceUntilStable(reSentenceEnd, text, "$1\n$2")

	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// replaceUntilStable reapplies the rewrite until a fixpoint. Go's RE2
// has no lookahead, so a single pass can miss adjacent matches (e.g.
// consecutive sentence endings); iterating restores that behavior and
// makes the whole transform idempotent.
func replaceUntilStable(re *regexp.Regexp, text, replacement string) string {
	for {
		next := re.ReplaceAllString(text, replacement)
		if next == text {
			return next
		}
		text = next
	}
}

// TruncateLine caps a single line at max runes, appending an ellipsis
// when it was cut.
func TruncateLine(line string, max int) string {
	if max <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= max {
		return line
	}
	return string(runes[:max]) + "…"
}
