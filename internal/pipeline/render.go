package pipeline

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

var (
	zeroWidthRe  = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}]`)
	spaceRunRe   = regexp.MustCompile(`[ \t\x{00A0}]+`)
	edgeSpacesRe = regexp.MustCompile(`(?m)^ +| +$`)
)

// CleanText normalizes scraped text: zero-width characters are dropped,
// runs of spaces, tabs and non-breaking spaces collapse to one space, and
// line structure is preserved.
func CleanText(s string) string {
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = edgeSpacesRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// RenderBody formats one passed post as a Telegram HTML message: channel
// title, optional author, the post body as a block quotation, and the
// receipt timestamp. All post-derived text is entity-escaped.
func RenderBody(channelTitle, author, text string, receivedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(channelTitle))
	if author != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(author))
	}
	if text != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", html.EscapeString(text))
	}
	fmt.Fprintf(&b, "%s", receivedAt.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}
