package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relaymesh/messaging-relay/internal/model"
)

// InsertMessage persists one message row. Body must already be encrypted.
func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, bot_id, sender, message, type, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, m.ID, m.ConversationID, m.BotID, m.Sender, m.Body, m.Kind, m.MediaURL, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecentMessages returns messages for a conversation created after since,
// newest first. Used by the ingestion idempotency check; bodies come back
// encrypted.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, since time.Time) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, bot_id, sender, message, type, COALESCE(url, ''), created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at DESC, id DESC
	`, conversationID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessages returns the last `limit` messages of a conversation in
// ascending (created_at, id) order. When before is non-zero only older
// messages are returned.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]model.Message, bool, error) {
	query := `
		SELECT id, conversation_id, bot_id, sender, message, type, COALESCE(url, ''), created_at
		FROM (
			SELECT id, conversation_id, bot_id, sender, message, type, url, created_at
			FROM messages
			WHERE conversation_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) window_rows
		ORDER BY created_at ASC, id ASC
	`
	var beforeArg *time.Time
	if !before.IsZero() {
		beforeArg = &before
	}

	// Fetch one extra row to report has_more.
	rows, err := s.pool.Query(ctx, query, conversationID, beforeArg, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[1:]
	}
	return msgs, hasMore, nil
}

// GetMessageWithOperator resolves a message together with the owning bot's
// operator id, in one join. Used by the change notifier.
func (s *Store) GetMessageWithOperator(ctx context.Context, id string) (*model.Message, string, error) {
	var m model.Message
	var operatorID string
	err := s.pool.QueryRow(ctx, `
		SELECT m.id, m.conversation_id, m.bot_id, m.sender, m.message, m.type,
		       COALESCE(m.url, ''), m.created_at, b.operator_id
		FROM messages m
		JOIN bots b ON b.id = m.bot_id
		WHERE m.id = $1
	`, id).Scan(&m.ID, &m.ConversationID, &m.BotID, &m.Sender, &m.Body, &m.Kind,
		&m.MediaURL, &m.CreatedAt, &operatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get message: %w", err)
	}
	return &m, operatorID, nil
}

// GetConversationWithOperator resolves a conversation together with the
// owning bot's operator id. Used by the change notifier.
func (s *Store) GetConversationWithOperator(ctx context.Context, id string) (*model.Conversation, string, error) {
	var c model.Conversation
	var operatorID string
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.bot_id, c.customer_phone, COALESCE(c.customer_name, ''), c.created_at, b.operator_id
		FROM conversations c
		JOIN bots b ON b.id = c.bot_id
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.BotID, &c.CustomerPhone, &c.CustomerName, &c.CreatedAt, &operatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, operatorID, nil
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.BotID, &m.Sender, &m.Body,
			&m.Kind, &m.MediaURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
