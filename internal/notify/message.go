package notify

import (
	"fmt"
	"strings"
	"time"
)

// maxReasonRunes bounds the escaped error text so a failure report stays under
// the Bot API's 4096 character message limit.
const maxReasonRunes = 3500

// markdownEscaper escapes the control characters of Telegram's legacy Markdown mode.
var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown makes s render literally inside a Markdown message.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func stamp(at time.Time) string {
	return at.UTC().Format("2006-01-02T15:04:05.000Z")
}

// SuccessMessage reports a completed login with the page it landed on.
func SuccessMessage(at time.Time, url, title string) string {
	return fmt.Sprintf("*Login succeeded!*\nTime: %s\nFinal page: %s\nTitle: %s",
		stamp(at), EscapeMarkdown(url), EscapeMarkdown(title))
}

// FailureMessage reports a failed login with its error text. saved notes whether
// diagnostic artifacts were written.
func FailureMessage(at time.Time, err error, saved bool) string {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	msg := fmt.Sprintf("*Login failed!*\nTime: %s\nError: %s", stamp(at), escapeTruncated(reason, maxReasonRunes))
	if saved {
		msg += "\nDebug artifacts saved."
	}
	return msg
}

// escapeTruncated escapes s and cuts it to at most limit runes, marking the cut
// with an ellipsis. Escape sequences are never split.
func escapeTruncated(s string, limit int) string {
	escaped := EscapeMarkdown(s)
	if len([]rune(escaped)) <= limit {
		return escaped
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		piece := EscapeMarkdown(string(r))
		w := len([]rune(piece))
		if n+w > limit-1 {
			break
		}
		b.WriteString(piece)
		n += w
	}
	b.WriteString("…")
	return b.String()
}
