// Package alert provides the in-process alert bus and the delivery sink
// that fans alerts out to subscribed chats.
package alert

import (
	"log/slog"
	"sync"

	"tgwatch/internal/model"
)

const subscriberBuffer = 16

// Bus is a process-local publish/subscribe channel for alerts. Publishing
// never blocks: with no subscribers, or a subscriber that has fallen behind
// its buffer, the payload is dropped.
type Bus struct {
	mu   sync.RWMutex
	subs []chan model.Alert
	log  *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a new subscriber and returns its alert channel.
func (b *Bus) Subscribe() <-chan model.Alert {
	ch := make(chan model.Alert, subscriberBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the alert to every subscriber without blocking.
func (b *Bus) Publish(a model.Alert) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- a:
		default:
			b.log.Warn("alert dropped, subscriber busy",
				"channel_id", a.ChannelID, "items", len(a.Items))
		}
	}
}
