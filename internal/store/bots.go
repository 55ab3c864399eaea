package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relaymesh/messaging-relay/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// GetBotByKey resolves a bot by its external webhook key.
func (s *Store) GetBotByKey(ctx context.Context, key string) (*model.Bot, error) {
	return s.scanBot(s.pool.QueryRow(ctx, `
		SELECT id, operator_id, key, phone_number_id, access_token, created_at
		FROM bots
		WHERE key = $1
	`, key))
}

// GetBotByID resolves a bot by primary key.
func (s *Store) GetBotByID(ctx context.Context, id string) (*model.Bot, error) {
	return s.scanBot(s.pool.QueryRow(ctx, `
		SELECT id, operator_id, key, phone_number_id, access_token, created_at
		FROM bots
		WHERE id = $1
	`, id))
}

func (s *Store) scanBot(row pgx.Row) (*model.Bot, error) {
	var b model.Bot
	err := row.Scan(&b.ID, &b.OperatorID, &b.Key, &b.PhoneNumberID, &b.AccessToken, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bot: %w", err)
	}
	return &b, nil
}
