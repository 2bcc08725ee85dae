package alert

import (
	"context"
	"log/slog"
	"sync"

	"tgwatch/internal/model"
)

// Sender is the interface for dispatching one rendered alert item to a chat.
type Sender interface {
	SendAlert(chatID int64, body string, mediaURL string, kind model.MediaKind) error
}

// Delivery consumes alerts from the bus and fans every item out to every
// recipient chat. Sends are concurrent and best-effort: a failed send is
// logged and swallowed without affecting its siblings.
type Delivery struct {
	alerts <-chan model.Alert
	sender Sender
	log    *slog.Logger
}

// NewDelivery subscribes a new Delivery to the bus.
func NewDelivery(bus *Bus, sender Sender, log *slog.Logger) *Delivery {
	return &Delivery{
		alerts: bus.Subscribe(),
		sender: sender,
		log:    log,
	}
}

// Run consumes alerts until ctx is cancelled.
func (d *Delivery) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.alerts:
			d.deliver(a)
		}
	}
}

func (d *Delivery) deliver(a model.Alert) {
	var wg sync.WaitGroup
	for _, item := range a.Items {
		for _, chatID := range a.ChatIDs {
			wg.Add(1)
			go func(item model.AlertItem, chatID int64) {
				defer wg.Done()
				if err := d.sender.SendAlert(chatID, item.Body, item.MediaURL, item.MediaKind); err != nil {
					d.log.Error("send alert",
						"channel_id", a.ChannelID, "chat_id", chatID, "error", err)
				}
			}(item, chatID)
		}
	}
	wg.Wait()

	d.log.Debug("delivered alert",
		"channel_id", a.ChannelID, "items", len(a.Items), "chats", len(a.ChatIDs))
}
