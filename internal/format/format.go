// Package format holds the pure text helpers behind the dashboard cells.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mattn/go-runewidth"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

// TruncateWidth is the widest a field may render before it is cut; the
// ellipsis is added on top.
const TruncateWidth = 47

const ellipsis = "..."

// Truncate cuts text wider than TruncateWidth cells and appends "...".
func Truncate(text string) string {
	if runewidth.StringWidth(text) <= TruncateWidth {
		return text
	}
	return runewidth.Truncate(text, TruncateWidth, "") + ellipsis
}

// Tag classifies a token for highlighting.
type Tag int

const (
	TagPlain Tag = iota
	TagPositive
	TagNegative
	TagNotice
)

// Token is a run of text with a highlight tag. Whitespace runs are kept as
// their own plain tokens so joining all Text fields restores the input.
type Token struct {
	Text string
	Tag  Tag
}

var keywords = map[string]Tag{
	"merged":     TagPositive,
	"approved":   TagPositive,
	"succeeded":  TagPositive,
	"success":    TagPositive,
	"successful": TagPositive,
	"passed":     TagPositive,
	"lgtm":       TagPositive,
	"+1":         TagPositive,
	"+2":         TagPositive,
	"failed":     TagNegative,
	"failure":    TagNegative,
	"rejected":   TagNegative,
	"error":      TagNegative,
	"-1":         TagNegative,
	"-2":         TagNegative,
	"abandoned":  TagNotice,
	"restored":   TagNotice,
	"recheck":    TagNotice,
	"reverify":   TagNotice,
}

// Tokenize splits text on whitespace and tags known review keywords.
// Matching ignores case and surrounding punctuation.
func Tokenize(text string) []Token {
	var tokens []Token
	var cur strings.Builder
	inSpace := false

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		s := cur.String()
		tag := TagPlain
		if !inSpace {
			tag = classify(s)
		}
		tokens = append(tokens, Token{Text: s, Tag: tag})
		cur.Reset()
	}

	for _, r := range text {
		space := unicode.IsSpace(r)
		if space != inSpace {
			flush()
			inSpace = space
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

func classify(word string) Tag {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return unicode.IsPunct(r) && r != '+' && r != '-'
	})
	if tag, ok := keywords[strings.ToLower(trimmed)]; ok {
		return tag
	}
	return TagPlain
}

// FormatTimestamp renders a creation time relative to now when it is less
// than a day old, and as an absolute date otherwise. Missing is "".
func FormatTimestamp(e protocol.Epoch, now time.Time) string {
	t, ok := e.Time()
	if !ok {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Format("03:04 PM 01/02/2006")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %02dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
	return t.Format("03:04 PM 01/02/2006")
}

// FormatClock renders the footer clock.
func FormatClock(t time.Time) string {
	return t.Format("03:04:05 PM 01/02/2006")
}

// OneLine collapses every whitespace run, newlines included, to one space.
func OneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
