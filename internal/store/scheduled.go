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

// ErrInvalidTransition is returned when a scheduled message status change
// would move backwards (status transitions are one-directional).
var ErrInvalidTransition = errors.New("invalid scheduled message status transition")

// CreateScheduled inserts a pending scheduled message.
func (s *Store) CreateScheduled(ctx context.Context, sm *model.ScheduledMessage) error {
	if sm.ID == "" {
		sm.ID = uuid.Must(uuid.NewV7()).String()
	}
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now().UTC()
	}
	sm.Status = model.ScheduledPending

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_messages
			(id, user_id, bot_id, conversation_ids, message, scheduled_for, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sm.ID, sm.OperatorID, sm.BotID, sm.ConversationIDs, sm.Message, sm.ScheduledFor, sm.Status, sm.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled message: %w", err)
	}
	return nil
}

// GetScheduled resolves a scheduled message by id, scoped to its operator.
func (s *Store) GetScheduled(ctx context.Context, id, operatorID string) (*model.ScheduledMessage, error) {
	return s.scanScheduled(s.pool.QueryRow(ctx, `
		SELECT id, user_id, bot_id, conversation_ids, message, scheduled_for,
		       status, sent_at, error_message, created_at
		FROM scheduled_messages
		WHERE id = $1 AND user_id = $2
	`, id, operatorID))
}

// ListScheduled returns the operator's scheduled messages, newest first.
func (s *Store) ListScheduled(ctx context.Context, operatorID string, limit, offset int) ([]model.ScheduledMessage, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, bot_id, conversation_ids, message, scheduled_for,
		       status, sent_at, error_message, created_at
		FROM scheduled_messages
		WHERE user_id = $1
		ORDER BY scheduled_for DESC
		LIMIT $2 OFFSET $3
	`, operatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scheduled messages: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledMessage
	for rows.Next() {
		sm, err := scanScheduledRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *sm)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_messages WHERE user_id = $1
	`, operatorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// DueScheduled returns pending rows whose scheduled_for has passed, oldest
// first, capped at limit.
func (s *Store) DueScheduled(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, bot_id, conversation_ids, message, scheduled_for,
		       status, sent_at, error_message, created_at
		FROM scheduled_messages
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due scheduled messages: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledMessage
	for rows.Next() {
		sm, err := scanScheduledRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sm)
	}
	return out, rows.Err()
}

// MarkScheduledSent transitions pending -> sent, recording sent_at and an
// optional aggregated error note for partially failed targets.
func (s *Store) MarkScheduledSent(ctx context.Context, id string, sentAt time.Time, note string) error {
	return s.transition(ctx, `
		UPDATE scheduled_messages
		SET status = 'sent', sent_at = $2, error_message = NULLIF($3, '')
		WHERE id = $1 AND status = 'pending'
	`, id, sentAt, note)
}

// MarkScheduledFailed transitions pending -> failed with the aggregated error.
func (s *Store) MarkScheduledFailed(ctx context.Context, id, errMsg string) error {
	return s.transition(ctx, `
		UPDATE scheduled_messages
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'pending'
	`, id, errMsg)
}

// CancelScheduled transitions pending -> cancelled, scoped to the operator.
// Rows are kept for audit, never deleted.
func (s *Store) CancelScheduled(ctx context.Context, id, operatorID string) error {
	return s.transition(ctx, `
		UPDATE scheduled_messages
		SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, operatorID)
}

func (s *Store) transition(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update scheduled message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func (s *Store) scanScheduled(row pgx.Row) (*model.ScheduledMessage, error) {
	sm, err := scanScheduledRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sm, err
}

func scanScheduledRow(row scannable) (*model.ScheduledMessage, error) {
	var sm model.ScheduledMessage
	err := row.Scan(&sm.ID, &sm.OperatorID, &sm.BotID, &sm.ConversationIDs, &sm.Message,
		&sm.ScheduledFor, &sm.Status, &sm.SentAt, &sm.ErrorMessage, &sm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sm, nil
}
