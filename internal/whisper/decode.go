package whisper

import (
	"regexp"
	"strings"
)

const markerExpr = `\[_[a-z0-9_]+_?\]|<\|[^|]*\|>`

var (
	markerPattern       = regexp.MustCompile(`(?i)` + markerExpr)
	specialTokenPattern = regexp.MustCompile(`(?i)^\s*(?:` + markerExpr + `)\s*$`)
)

// Decode returns the transcript text of out. Segment text is authoritative;
// tokens are joined only for segments that carry no text, and an output
// without segments falls back to Output.Text. Control markers are removed
// and the result is trimmed.
func Decode(out Output) string {
	if len(out.Segments) == 0 {
		return clean(out.Text)
	}

	var b strings.Builder
	for _, seg := range out.Segments {
		b.WriteString(decodeSegment(seg))
	}

	text := clean(b.String())
	if text == "" {
		return clean(out.Text)
	}
	return text
}

func decodeSegment(seg Segment) string {
	if strings.TrimSpace(seg.Text) != "" {
		return seg.Text
	}

	var b strings.Builder
	for _, tok := range seg.Tokens {
		if tok.Text == "" || IsSpecialToken(tok.Text) {
			continue
		}
		b.WriteString(tok.Text)
	}
	return b.String()
}

func clean(text string) string {
	text = markerPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.ToValidUTF8(text, ""))
}

// IsSpecialToken reports control tokens such as [_BEG_], [_TT_42],
// [_extra_token_50] or <|sv|> that carry no transcript text.
func IsSpecialToken(text string) bool {
	return specialTokenPattern.MatchString(text)
}
