// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"tgwatch/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateChannel(ctx context.Context, ch *model.Channel) error
	GetChannel(ctx context.Context, id int64) (*model.Channel, error)
	GetChannelByUsername(ctx context.Context, username string) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	UpdateChannel(ctx context.Context, ch *model.Channel) error
	DeleteChannel(ctx context.Context, id int64) error
	TouchChannels(ctx context.Context, ids []int64, polledAt time.Time) error

	ExistingMessageIDs(ctx context.Context, channelID int64, tgMessageIDs []int64) (map[int64]struct{}, error)
	InsertMessages(ctx context.Context, msgs []model.Message) error
	ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]model.Message, error)

	CreateRule(ctx context.Context, r *model.Rule) error
	ListRules(ctx context.Context) ([]model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	Subscribe(ctx context.Context, channelID, chatID int64) error
	Unsubscribe(ctx context.Context, channelID, chatID int64) error
	SetMuted(ctx context.Context, channelID, chatID int64, muted bool) error
	ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error)
	ListRecipients(ctx context.Context, channelID int64) ([]int64, error)

	Close() error
}
