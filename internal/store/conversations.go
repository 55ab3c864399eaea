package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaymesh/messaging-relay/internal/model"
)

// FindOrCreateConversation returns the conversation for (bot, phone),
// creating it on first contact. Reports whether a new row was inserted.
func (s *Store) FindOrCreateConversation(ctx context.Context, botID, phone, name string) (*model.Conversation, bool, error) {
	conv, err := s.getConversationByCustomer(ctx, botID, phone)
	if err == nil {
		// Opportunistic display-name refresh.
		if name != "" && conv.CustomerName != name {
			if uerr := s.updateCustomerName(ctx, conv.ID, name); uerr == nil {
				conv.CustomerName = name
			}
		}
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	conv = &model.Conversation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		BotID:         botID,
		CustomerPhone: phone,
		CustomerName:  name,
		CreatedAt:     time.Now().UTC(),
	}

	// Concurrent ingestion of two first messages races here; the unique
	// (bot_id, customer_phone) constraint makes the loser re-read.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, bot_id, customer_phone, customer_name, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (bot_id, customer_phone) DO NOTHING
	`, conv.ID, conv.BotID, conv.CustomerPhone, conv.CustomerName, conv.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	existing, err := s.getConversationByCustomer(ctx, botID, phone)
	if err != nil {
		return nil, false, err
	}
	created := existing.ID == conv.ID
	return existing, created, nil
}

func (s *Store) getConversationByCustomer(ctx context.Context, botID, phone string) (*model.Conversation, error) {
	return s.scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, bot_id, customer_phone, COALESCE(customer_name, ''), created_at
		FROM conversations
		WHERE bot_id = $1 AND customer_phone = $2
	`, botID, phone))
}

// GetConversation resolves a conversation by primary key.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, bot_id, customer_phone, COALESCE(customer_name, ''), created_at
		FROM conversations
		WHERE id = $1
	`, id))
}

// ConversationOwnedBy reports whether the conversation's bot belongs to the
// operator.
func (s *Store) ConversationOwnedBy(ctx context.Context, conversationID, operatorID string) (bool, error) {
	var owned bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM conversations c
			JOIN bots b ON b.id = c.bot_id
			WHERE c.id = $1 AND b.operator_id = $2
		)
	`, conversationID, operatorID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return owned, nil
}

// ListConversations returns the operator's conversations ordered by
// last-message time descending, conversations with no messages last.
func (s *Store) ListConversations(ctx context.Context, operatorID string, limit, offset int) ([]model.Conversation, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.bot_id, c.customer_phone, COALESCE(c.customer_name, ''), c.created_at,
		       COALESCE(m.message, ''), m.created_at
		FROM conversations c
		JOIN bots b ON b.id = c.bot_id
		LEFT JOIN LATERAL (
			SELECT message, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON true
		WHERE b.operator_id = $1
		ORDER BY m.created_at DESC NULLS LAST, c.created_at DESC
		LIMIT $2 OFFSET $3
	`, operatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var lastAt *time.Time
		if err := rows.Scan(&c.ID, &c.BotID, &c.CustomerPhone, &c.CustomerName, &c.CreatedAt,
			&c.LastMessage, &lastAt); err != nil {
			return nil, 0, err
		}
		c.LastMessageTime = lastAt
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM conversations c
		JOIN bots b ON b.id = c.bot_id
		WHERE b.operator_id = $1
	`, operatorID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return convs, total, nil
}

// CountConversationsForBot counts how many of the given ids belong to the
// bot. Used to validate scheduled message targets.
func (s *Store) CountConversationsForBot(ctx context.Context, ids []string, botID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations WHERE id = ANY($1) AND bot_id = $2
	`, ids, botID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (s *Store) updateCustomerName(ctx context.Context, id, name string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET customer_name = $2 WHERE id = $1
	`, id, name)
	return err
}

func (s *Store) scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.BotID, &c.CustomerPhone, &c.CustomerName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	return &c, nil
}
