package bot

import (
	"context"
	"fmt"

	"tgwatch/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Channel Watch Bot!

Watch public Telegram channels and get alerts for posts that match your rules.

Quick start:
1. /watch <username> — start watching a channel
2. /subscribe <id> — receive its alerts in this chat
3. /include <phrase> — add an alerting phrase

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Channel management:
/watch <username> [minutes] — watch a channel (default: every 5 min)
/unwatch <id> — stop watching a channel
/channels — show watched channels
/interval <id> <minutes> — change polling interval (1-1440)
/recent <id> — show the latest stored posts

Subscriptions:
/subscribe <id> — receive alerts for a channel in this chat
/unsubscribe <id> — stop receiving alerts
/mute <id> — keep the subscription but pause alerts
/unmute <id> — resume alerts

Rules (global, exclude wins over include):
/rules — show all rules
/include <phrase> — alert on posts containing the phrase
/exclude <phrase> — never alert on posts containing the phrase
/rmrule <rule_id> — remove a rule`)
}

func (b *Bot) handleWatch(ctx context.Context, chatID int64, args string) {
	username, minutes, err := ParseWatchArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /watch <username> [minutes]\n%v", err))
		return
	}

	if existing, err := b.store.GetChannelByUsername(ctx, username); err == nil {
		b.reply(chatID, fmt.Sprintf("Already watching @%s as #%d. Use /subscribe %d to get its alerts.",
			username, existing.ID, existing.ID))
		return
	}

	ch := &model.Channel{
		Username:        username,
		Title:           "@" + username,
		IntervalSeconds: minutes * 60,
	}
	if err := b.store.CreateChannel(ctx, ch); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save channel: %v", err))
		return
	}
	if err := b.store.Subscribe(ctx, ch.ID, chatID); err != nil {
		b.log.Error("subscribe after watch", "channel_id", ch.ID, "chat_id", chatID, "error", err)
	}

	b.reply(chatID, fmt.Sprintf("Watching @%s as #%d (every %d min). This chat is subscribed.",
		username, ch.ID, minutes))
}

func (b *Bot) handleUnwatch(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unwatch <id>")
		return
	}

	ch, err := b.store.GetChannel(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Channel #%d not found.", id))
		return
	}
	if err := b.store.DeleteChannel(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to remove channel: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Stopped watching @%s.", ch.Username))
}

func (b *Bot) handleChannels(ctx context.Context, chatID int64) {
	channels, err := b.store.ListChannels(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, FormatChannelList(channels, subs))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, minutes, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /interval <id> <minutes>\n%v", err))
		return
	}

	ch, err := b.store.GetChannel(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Channel #%d not found.", id))
		return
	}
	ch.IntervalSeconds = minutes * 60
	if err := b.store.UpdateChannel(ctx, ch); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to update channel: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("@%s is now polled every %d min.", ch.Username, minutes))
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /subscribe <id>")
		return
	}

	ch, err := b.store.GetChannel(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Channel #%d not found.", id))
		return
	}
	if err := b.store.Subscribe(ctx, id, chatID); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to subscribe: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Subscribed to @%s.", ch.Username))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unsubscribe <id>")
		return
	}

	if err := b.store.Unsubscribe(ctx, id, chatID); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to unsubscribe: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Unsubscribed from #%d.", id))
}

func (b *Bot) handleMute(ctx context.Context, chatID int64, args string, muted bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if muted {
			b.reply(chatID, "Usage: /mute <id>")
		} else {
			b.reply(chatID, "Usage: /unmute <id>")
		}
		return
	}

	if err := b.store.SetMuted(ctx, id, chatID, muted); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to update subscription: %v", err))
		return
	}

	if muted {
		b.reply(chatID, fmt.Sprintf("Alerts for #%d muted.", id))
	} else {
		b.reply(chatID, fmt.Sprintf("Alerts for #%d resumed.", id))
	}
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, isExclusion bool) {
	phrase, err := ParsePhraseArg(args)
	if err != nil {
		if isExclusion {
			b.reply(chatID, "Usage: /exclude <phrase>")
		} else {
			b.reply(chatID, "Usage: /include <phrase>")
		}
		return
	}

	r := &model.Rule{Phrase: phrase, IsExclusion: isExclusion}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save rule: %v", err))
		return
	}

	kind := "Include"
	if isExclusion {
		kind = "Exclude"
	}
	b.reply(chatID, fmt.Sprintf("%s rule R%d added: %s", kind, r.ID, r.Phrase))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to remove rule: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed.", id))
}

func (b *Bot) handleRecent(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /recent <id>")
		return
	}

	ch, err := b.store.GetChannel(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Channel #%d not found.", id))
		return
	}
	msgs, err := b.store.ListRecentMessages(ctx, id, 5)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, FormatRecentMessages(ch, msgs))
}
