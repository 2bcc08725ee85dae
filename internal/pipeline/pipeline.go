// Package pipeline ingests scraped posts: it deduplicates them against the
// message store, applies the rule filter, persists the batch, and publishes
// an alert for the posts that passed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tgwatch/internal/filter"
	"tgwatch/internal/model"
	"tgwatch/internal/storage"
)

// Publisher is the interface the pipeline publishes alerts through.
type Publisher interface {
	Publish(a model.Alert)
}

// Pipeline processes one scraped batch at a time. Batches for different
// channels may be ingested concurrently; the composite message key in the
// store is the dedupe boundary.
type Pipeline struct {
	store storage.Storage
	bus   Publisher
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Pipeline.
func New(store storage.Storage, bus Publisher, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// Ingest processes a batch of posts for one channel. It returns the number of
// newly persisted messages and the number of items included in a published
// alert (zero when nothing was published). Rules and recipients are loaded
// fresh for every batch.
//
// Every new post is persisted whether or not it passed the filter; the
// passed_filter flag records filter eligibility, not delivery.
func (p *Pipeline) Ingest(ctx context.Context, ch model.Channel, posts []model.Post) (int, int, error) {
	if len(posts) == 0 {
		return 0, 0, nil
	}

	rules, err := p.store.ListRules(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list rules: %w", err)
	}
	engine := filter.NewEngine(rules)

	recipients, err := p.store.ListRecipients(ctx, ch.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list recipients: %w", err)
	}

	ids := make([]int64, 0, len(posts))
	for _, post := range posts {
		if post.MessageID > 0 {
			ids = append(ids, post.MessageID)
		}
	}

	existing, err := p.store.ExistingMessageIDs(ctx, ch.ID, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("existing message ids: %w", err)
	}

	receivedAt := p.now().UTC()
	var msgs []model.Message
	var items []model.AlertItem
	for _, post := range posts {
		if post.MessageID <= 0 {
			continue
		}
		if _, seen := existing[post.MessageID]; seen {
			continue
		}

		text := CleanText(post.Text)
		passed := engine.Classify(text)

		msgs = append(msgs, model.Message{
			ChannelID:    ch.ID,
			TGMessageID:  post.MessageID,
			Text:         text,
			MediaURL:     post.MediaURL,
			MediaKind:    post.MediaKind,
			PostedAt:     post.PostedAt,
			PassedFilter: passed,
		})
		if passed {
			items = append(items, model.AlertItem{
				Body:      RenderBody(ch.Title, post.Author, text, receivedAt),
				MediaURL:  post.MediaURL,
				MediaKind: post.MediaKind,
			})
		}
	}

	if len(msgs) == 0 {
		return 0, 0, nil
	}

	if err := p.store.InsertMessages(ctx, msgs); err != nil {
		p.log.Error("persist batch", "channel_id", ch.ID, "count", len(msgs), "error", err)
		return 0, 0, fmt.Errorf("insert messages: %w", err)
	}

	alerted := 0
	if len(items) > 0 && len(recipients) > 0 {
		p.bus.Publish(model.Alert{
			ChannelID:    ch.ID,
			ChannelTitle: ch.Title,
			Items:        items,
			ChatIDs:      recipients,
		})
		alerted = len(items)
	}

	p.log.Debug("ingested batch",
		"channel_id", ch.ID, "posts", len(posts), "persisted", len(msgs), "alerted", alerted)
	return len(msgs), alerted, nil
}
