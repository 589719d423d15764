package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and creates any missing tables.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, EnsureSchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass ":memory:" with EnsureSchema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RecipientStore implementation ====

// RecipientsForEvent returns subscribers that want this notification, skipping
// those who muted username and the subscriber linked to username itself.
func (s *SQLiteStore) RecipientsForEvent(ctx context.Context, username string, event core.NotificationType) ([]store.Recipient, error) {
	var column string
	switch event {
	case core.NotificationJoin:
		column = "notify_join"
	case core.NotificationLeave:
		column = "notify_leave"
	default:
		return nil, fmt.Errorf("unknown notification type %q", event)
	}

	query := `
		SELECT s.telegram_id, s.lang, s.not_on_online, s.linked_username
		FROM subscribers s
		WHERE s.` + column + ` = 1
		  AND (s.linked_username = '' OR s.linked_username != ?)
		  AND NOT EXISTS (
			SELECT 1 FROM mutes m
			WHERE m.telegram_id = s.telegram_id AND m.username = ?
		  )
		ORDER BY s.telegram_id
	`
	rows, err := s.db.QueryContext(ctx, query, username, username)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []store.Recipient
	for rows.Next() {
		var r store.Recipient
		if err := rows.Scan(&r.TelegramID, &r.Lang, &r.NotOnOnline, &r.LinkedUsername); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}

	return recipients, nil
}

// DeleteUserProfile removes a subscriber with its mutes and pending replies.
func (s *SQLiteStore) DeleteUserProfile(ctx context.Context, telegramID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, query := range []string{
		`DELETE FROM subscribers WHERE telegram_id = ?`,
		`DELETE FROM mutes WHERE telegram_id = ?`,
		`DELETE FROM pending_replies WHERE chat_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, query, telegramID); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertSubscriber creates a subscriber or updates its settings.
func (s *SQLiteStore) UpsertSubscriber(ctx context.Context, sub store.Subscriber) error {
	if sub.Lang == "" {
		sub.Lang = "en"
	}
	query := `
		INSERT INTO subscribers (telegram_id, lang, not_on_online, linked_username, notify_join, notify_leave)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			lang = excluded.lang,
			not_on_online = excluded.not_on_online,
			linked_username = excluded.linked_username,
			notify_join = excluded.notify_join,
			notify_leave = excluded.notify_leave
	`
	_, err := s.db.ExecContext(ctx, query,
		sub.TelegramID, sub.Lang, sub.NotOnOnline, sub.LinkedUsername, sub.NotifyJoin, sub.NotifyLeave)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// GetSubscriber returns a subscriber by Telegram id.
func (s *SQLiteStore) GetSubscriber(ctx context.Context, telegramID int64) (*store.Subscriber, error) {
	query := `
		SELECT telegram_id, lang, not_on_online, linked_username, notify_join, notify_leave, created_at
		FROM subscribers
		WHERE telegram_id = ?
	`
	var sub store.Subscriber
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&sub.TelegramID,
		&sub.Lang,
		&sub.NotOnOnline,
		&sub.LinkedUsername,
		&sub.NotifyJoin,
		&sub.NotifyLeave,
		&sub.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscriber %d: %w", telegramID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query subscriber: %w", err)
	}

	return &sub, nil
}

// SetMute adds or removes a mute for username.
func (s *SQLiteStore) SetMute(ctx context.Context, telegramID int64, username string, muted bool) error {
	query := `DELETE FROM mutes WHERE telegram_id = ? AND username = ?`
	if muted {
		query = `INSERT OR IGNORE INTO mutes (telegram_id, username) VALUES (?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, query, telegramID, username); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	return nil
}

// ==== LinkStore implementation ====

// TelegramIDByTalkUser returns the newest subscriber linked to username.
func (s *SQLiteStore) TelegramIDByTalkUser(ctx context.Context, username string) (int64, error) {
	query := `
		SELECT telegram_id FROM subscribers
		WHERE linked_username = ? AND linked_username != ''
		ORDER BY created_at DESC, telegram_id DESC
		LIMIT 1
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query, username).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("link for %q: %w", username, store.ErrNotFound)
		}
		return 0, fmt.Errorf("query link: %w", err)
	}
	return id, nil
}

// LangByTalkUser returns the language of the subscriber linked to username.
func (s *SQLiteStore) LangByTalkUser(ctx context.Context, username string) (string, error) {
	query := `
		SELECT lang FROM subscribers
		WHERE linked_username = ? AND linked_username != ''
		ORDER BY created_at DESC, telegram_id DESC
		LIMIT 1
	`
	var lang string
	err := s.db.QueryRowContext(ctx, query, username).Scan(&lang)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("lang for %q: %w", username, store.ErrNotFound)
		}
		return "", fmt.Errorf("query lang: %w", err)
	}
	return lang, nil
}

// ==== AdminStore implementation ====

// ListAdmins returns every admin id.
func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id FROM admins ORDER BY telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}
	return ids, nil
}

// IsAdmin checks admin membership.
func (s *SQLiteStore) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE telegram_id = ?`, telegramID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query admin: %w", err)
	}
	return true, nil
}

// AddAdmin reports false if telegramID was already an admin.
func (s *SQLiteStore) AddAdmin(ctx context.Context, telegramID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO admins (telegram_id) VALUES (?)`, telegramID)
	if err != nil {
		return false, fmt.Errorf("insert admin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveAdmin reports false if telegramID was not an admin.
func (s *SQLiteStore) RemoveAdmin(ctx context.Context, telegramID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return false, fmt.Errorf("delete admin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ==== DeeplinkStore implementation ====

// CreateDeeplink stores a one-time token valid for ttl.
func (s *SQLiteStore) CreateDeeplink(ctx context.Context, action store.DeeplinkAction, talkUsername string, ttl time.Duration) (string, error) {
	// Telegram start parameters allow [A-Za-z0-9_-] only.
	token := uuid.NewString()
	expires := s.now().Add(ttl).UTC()

	query := `
		INSERT INTO deeplinks (token, action, talk_username, expires_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, token, string(action), talkUsername, expires); err != nil {
		return "", fmt.Errorf("insert deeplink: %w", err)
	}
	return token, nil
}

// ConsumeDeeplink returns the link and deletes it. Expired links are deleted
// too and reported as not found.
func (s *SQLiteStore) ConsumeDeeplink(ctx context.Context, token string) (*store.Deeplink, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var link store.Deeplink
	var action string
	err = tx.QueryRowContext(ctx,
		`SELECT token, action, talk_username, expires_at FROM deeplinks WHERE token = ?`, token,
	).Scan(&link.Token, &action, &link.TalkUsername, &link.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deeplink: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query deeplink: %w", err)
	}
	link.Action = store.DeeplinkAction(action)

	if _, err := tx.ExecContext(ctx, `DELETE FROM deeplinks WHERE token = ?`, token); err != nil {
		return nil, fmt.Errorf("delete deeplink: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	if !s.now().Before(link.ExpiresAt) {
		return nil, fmt.Errorf("deeplink expired: %w", store.ErrNotFound)
	}
	return &link, nil
}

// ==== PendingReplyStore implementation ====

// AddPendingReply correlates an admin chat message with a talk user.
func (s *SQLiteStore) AddPendingReply(ctx context.Context, r store.PendingReply) error {
	r.ChannelID = 0
	return s.insertPendingReply(ctx, r)
}

// AddPendingChannelReply correlates an admin chat message with a talk channel.
func (s *SQLiteStore) AddPendingChannelReply(ctx context.Context, r store.PendingReply) error {
	r.TalkUserID = 0
	r.TalkUsername = ""
	return s.insertPendingReply(ctx, r)
}

func (s *SQLiteStore) insertPendingReply(ctx context.Context, r store.PendingReply) error {
	query := `
		INSERT OR REPLACE INTO pending_replies (chat_id, message_id, talk_user_id, talk_username, channel_id)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, r.ChatID, r.MessageID, r.TalkUserID, r.TalkUsername, r.ChannelID)
	if err != nil {
		return fmt.Errorf("insert pending reply: %w", err)
	}
	return nil
}

// PendingReply returns the correlation row for a Telegram message.
func (s *SQLiteStore) PendingReply(ctx context.Context, chatID int64, messageID int) (*store.PendingReply, error) {
	query := `
		SELECT chat_id, message_id, talk_user_id, talk_username, channel_id, created_at
		FROM pending_replies
		WHERE chat_id = ? AND message_id = ?
	`
	var r store.PendingReply
	err := s.db.QueryRowContext(ctx, query, chatID, messageID).Scan(
		&r.ChatID,
		&r.MessageID,
		&r.TalkUserID,
		&r.TalkUsername,
		&r.ChannelID,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending reply: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query pending reply: %w", err)
	}
	return &r, nil
}
