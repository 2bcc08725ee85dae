package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tgwatch/internal/model"
	"tgwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateChannel inserts a new channel and populates its ID and CreatedAt.
func (s *SQLite) CreateChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (username, title, interval_seconds, created_at)
		 VALUES (?, ?, ?, ?)`,
		ch.Username, ch.Title, ch.IntervalSeconds, now,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	ch.ID = id
	ch.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetChannel returns a single channel by its ID.
func (s *SQLite) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, title, interval_seconds, last_polled_at, created_at
		 FROM channels WHERE id = ?`, id,
	)
	return scanChannel(row)
}

// GetChannelByUsername returns a single channel by its source username.
func (s *SQLite) GetChannelByUsername(ctx context.Context, username string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, title, interval_seconds, last_polled_at, created_at
		 FROM channels WHERE username = ?`, username,
	)
	return scanChannel(row)
}

// ListChannels returns every registered channel.
func (s *SQLite) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, title, interval_seconds, last_polled_at, created_at
		 FROM channels ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// UpdateChannel persists changes to an existing channel.
func (s *SQLite) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	var lastPolled *string
	if ch.LastPolledAt != nil {
		v := ch.LastPolledAt.UTC().Format(timeLayout)
		lastPolled = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET username = ?, title = ?, interval_seconds = ?, last_polled_at = ?
		 WHERE id = ?`,
		ch.Username, ch.Title, ch.IntervalSeconds, lastPolled, ch.ID,
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel with its messages and subscriptions.
func (s *SQLite) DeleteChannel(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE channel_id = ?`, id); err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return tx.Commit()
}

// TouchChannels updates last_polled_at for all given channels in one transaction.
// The timestamp never moves backwards.
func (s *SQLite) TouchChannels(ctx context.Context, ids []int64, polledAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := polledAt.UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE channels SET last_polled_at = ?
			 WHERE id = ? AND (last_polled_at IS NULL OR last_polled_at <= ?)`,
			ts, id, ts,
		); err != nil {
			return fmt.Errorf("touch channel %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// ExistingMessageIDs returns the subset of the given message IDs that are
// already stored for the channel.
func (s *SQLite) ExistingMessageIDs(ctx context.Context, channelID int64, tgMessageIDs []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})
	if len(tgMessageIDs) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(tgMessageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(tgMessageIDs)+1)
	args = append(args, channelID)
	for _, id := range tgMessageIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tg_message_id FROM messages WHERE channel_id = ? AND tg_message_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query existing messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertMessages stores a batch of messages in one transaction. Rows that
// collide on (channel_id, tg_message_id) are ignored, keeping the first
// stored copy.
func (s *SQLite) InsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages
			 (channel_id, tg_message_id, text, media_url, media_kind, posted_at, passed_filter, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ChannelID, m.TGMessageID, m.Text, m.MediaURL, string(m.MediaKind),
			m.PostedAt.UTC().Format(timeLayout), boolToInt(m.PassedFilter), now,
		); err != nil {
			return fmt.Errorf("insert message %d/%d: %w", m.ChannelID, m.TGMessageID, err)
		}
	}
	return tx.Commit()
}

// ListRecentMessages returns the newest stored messages for a channel.
func (s *SQLite) ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, tg_message_id, text, media_url, media_kind, posted_at, passed_filter, created_at
		 FROM messages WHERE channel_id = ? ORDER BY tg_message_id DESC LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var kind string
		var postedStr, createdStr string
		var passed int
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.TGMessageID, &m.Text, &m.MediaURL,
			&kind, &postedStr, &passed, &createdStr); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.MediaKind = model.MediaKind(kind)
		m.PassedFilter = passed == 1
		m.PostedAt, _ = time.Parse(timeLayout, postedStr)
		m.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateRule inserts a new rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, r *model.Rule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (phrase, is_exclusion, created_at) VALUES (?, ?, ?)`,
		r.Phrase, boolToInt(r.IsExclusion), now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns all rules.
func (s *SQLite) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phrase, is_exclusion, created_at FROM rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		var excl int
		var createdStr string
		if err := rows.Scan(&r.ID, &r.Phrase, &excl, &createdStr); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.IsExclusion = excl == 1
		r.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// Subscribe adds a chat to a channel's recipients. Re-subscribing an existing
// pair is a no-op that also clears the muted flag.
func (s *SQLite) Subscribe(ctx context.Context, channelID, chatID int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (channel_id, chat_id, muted, created_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT (channel_id, chat_id) DO UPDATE SET muted = 0`,
		channelID, chatID, now,
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes a chat from a channel's recipients.
func (s *SQLite) Unsubscribe(ctx context.Context, channelID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE channel_id = ? AND chat_id = ?`,
		channelID, chatID,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// SetMuted toggles do-not-disturb for a subscription.
func (s *SQLite) SetMuted(ctx context.Context, channelID, chatID int64, muted bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET muted = ? WHERE channel_id = ? AND chat_id = ?`,
		boolToInt(muted), channelID, chatID,
	)
	if err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	return nil
}

// ListSubscriptions returns all subscriptions of a chat.
func (s *SQLite) ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, chat_id, muted, created_at
		 FROM subscriptions WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var muted int
		var createdStr string
		if err := rows.Scan(&sub.ID, &sub.ChannelID, &sub.ChatID, &muted, &createdStr); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.Muted = muted == 1
		sub.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListRecipients returns the chat IDs subscribed to a channel, excluding
// muted subscriptions.
func (s *SQLite) ListRecipients(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM subscriptions WHERE channel_id = ? AND muted = 0 ORDER BY chat_id`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chatIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		chatIDs = append(chatIDs, id)
	}
	return chatIDs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChannel(row scannable) (*model.Channel, error) {
	var ch model.Channel
	var lastPolled, created sql.NullString
	err := row.Scan(&ch.ID, &ch.Username, &ch.Title, &ch.IntervalSeconds, &lastPolled, &created)
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	if lastPolled.Valid {
		t, _ := time.Parse(timeLayout, lastPolled.String)
		ch.LastPolledAt = &t
	}
	if created.Valid {
		ch.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &ch, nil
}
