// Package model defines the domain types used across the application.
package model

import "time"

// Channel represents a monitored Telegram channel.
type Channel struct {
	ID              int64
	Username        string
	Title           string
	IntervalSeconds int
	LastPolledAt    *time.Time
	CreatedAt       time.Time
}

// Due reports whether the channel should be polled at the given instant.
// A channel that has never been polled is always due.
func (c Channel) Due(now time.Time) bool {
	if c.LastPolledAt == nil {
		return true
	}
	return now.Sub(*c.LastPolledAt) >= time.Duration(c.IntervalSeconds)*time.Second
}

// MediaKind identifies the attachment type of a post.
type MediaKind string

// Supported media kinds. Empty means no media.
const (
	MediaNone  MediaKind = ""
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Post is a single item extracted from a channel's preview page.
// Posts are ephemeral; they become Messages only after cleaning and filtering.
type Post struct {
	MessageID int64
	Text      string
	MediaURL  string
	MediaKind MediaKind
	PostedAt  time.Time
	Author    string
}

// Message is a persisted channel post. Messages are immutable once stored;
// (ChannelID, TGMessageID) is the identity under which a post is never
// processed twice.
type Message struct {
	ID           int64
	ChannelID    int64
	TGMessageID  int64
	Text         string
	MediaURL     string
	MediaKind    MediaKind
	PostedAt     time.Time
	PassedFilter bool
	CreatedAt    time.Time
}

// Rule is a global phrase rule applied to every ingested post.
// Exclusion rules take precedence over inclusion rules.
type Rule struct {
	ID          int64
	Phrase      string
	IsExclusion bool
	CreatedAt   time.Time
}

// Subscription links a chat to a channel. Muted subscriptions stay stored
// but receive no alerts.
type Subscription struct {
	ID        int64
	ChannelID int64
	ChatID    int64
	Muted     bool
	CreatedAt time.Time
}

// AlertItem is one rendered post ready for delivery.
type AlertItem struct {
	Body      string
	MediaURL  string
	MediaKind MediaKind
}

// Alert is the payload published on the alert bus for one ingested batch:
// the rendered posts that passed the filter plus the chats to notify.
// Alerts exist only in transit and are never persisted.
type Alert struct {
	ChannelID    int64
	ChannelTitle string
	Items        []AlertItem
	ChatIDs      []int64
}
