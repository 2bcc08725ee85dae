// Package bot implements the Telegram command surface and the concrete
// alert sender.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgwatch/internal/config"
	"tgwatch/internal/model"
	"tgwatch/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and delivers alerts.
type Bot struct {
	api   telegramAPI
	store storage.Storage
	cfg   *config.Config
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendAlert delivers one rendered alert item to a chat. Bodies are rendered
// in Telegram HTML; media items carry the body as a caption.
func (b *Bot) SendAlert(chatID int64, body string, mediaURL string, kind model.MediaKind) error {
	var c tgbotapi.Chattable
	switch kind {
	case model.MediaPhoto:
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(mediaURL))
		msg.Caption = body
		msg.ParseMode = tgbotapi.ModeHTML
		c = msg
	case model.MediaVideo:
		msg := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(mediaURL))
		msg.Caption = body
		msg.ParseMode = tgbotapi.ModeHTML
		c = msg
	default:
		msg := tgbotapi.NewMessage(chatID, body)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		c = msg
	}
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "watch":
		b.handleWatch(ctx, chatID, args)
	case "unwatch":
		b.handleUnwatch(ctx, chatID, args)
	case "channels":
		b.handleChannels(ctx, chatID)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "subscribe":
		b.handleSubscribe(ctx, chatID, args)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID, args)
	case "mute":
		b.handleMute(ctx, chatID, args, true)
	case "unmute":
		b.handleMute(ctx, chatID, args, false)
	case "rules":
		b.handleRules(ctx, chatID)
	case "include":
		b.handleAddRule(ctx, chatID, args, false)
	case "exclude":
		b.handleAddRule(ctx, chatID, args, true)
	case "rmrule":
		b.handleRmRule(ctx, chatID, args)
	case "recent":
		b.handleRecent(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
