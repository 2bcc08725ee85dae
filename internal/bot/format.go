package bot

import (
	"fmt"
	"strings"

	"tgwatch/internal/model"
)

// FormatChannelList formats the watched channels with this chat's
// subscription status.
func FormatChannelList(channels []model.Channel, subs []model.Subscription) string {
	if len(channels) == 0 {
		return "No channels are watched yet. Use /watch <username> to add one."
	}

	status := make(map[int64]string, len(subs))
	for _, s := range subs {
		if s.Muted {
			status[s.ChannelID] = "muted"
		} else {
			status[s.ChannelID] = "subscribed"
		}
	}

	var b strings.Builder
	b.WriteString("Watched channels:\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "\n#%d @%s  (every %d min)", ch.ID, ch.Username, ch.IntervalSeconds/60)
		if st, ok := status[ch.ID]; ok {
			fmt.Fprintf(&b, " [%s]", st)
		}
		if ch.LastPolledAt != nil {
			fmt.Fprintf(&b, "\n   last poll: %s", ch.LastPolledAt.Format("2006-01-02 15:04 UTC"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatRuleList formats the global rule set grouped by kind.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No rules yet — no posts will alert.\nUse /include <phrase> to add an alerting phrase."
	}

	var include, exclude []model.Rule
	for _, r := range rules {
		if r.IsExclusion {
			exclude = append(exclude, r)
		} else {
			include = append(include, r)
		}
	}

	var b strings.Builder
	b.WriteString("Rules (exclude wins over include):\n")
	if len(include) > 0 {
		b.WriteString("\nInclude:\n")
		for _, r := range include {
			fmt.Fprintf(&b, "  R%d: %s\n", r.ID, r.Phrase)
		}
	}
	if len(exclude) > 0 {
		b.WriteString("\nExclude:\n")
		for _, r := range exclude {
			fmt.Fprintf(&b, "  R%d: %s\n", r.ID, r.Phrase)
		}
	}
	return b.String()
}

// FormatRecentMessages formats the latest stored posts of a channel.
func FormatRecentMessages(ch *model.Channel, msgs []model.Message) string {
	if len(msgs) == 0 {
		return fmt.Sprintf("No stored posts for @%s yet.", ch.Username)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest posts from @%s:\n", ch.Username)
	for _, m := range msgs {
		text := m.Text
		if len(text) > 120 {
			text = text[:120] + "..."
		}
		mark := " "
		if m.PassedFilter {
			mark = "*"
		}
		fmt.Fprintf(&b, "\n%s %d (%s)\n%s\n", mark, m.TGMessageID, m.PostedAt.Format("2006-01-02 15:04"), text)
	}
	b.WriteString("\n* = matched the rule filter")
	return b.String()
}
