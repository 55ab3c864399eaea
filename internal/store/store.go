// Package store provides PostgreSQL persistence for the relay.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification channels raised by the insert triggers in schema.sql.
const (
	ChannelNewMessage      = "new_message"
	ChannelNewConversation = "new_conversation"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	url  string
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Store{pool: pool, url: url}, nil
}

// URL returns the connection string, used for the notifier's dedicated
// LISTEN connection.
func (s *Store) URL() string {
	return s.url
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
