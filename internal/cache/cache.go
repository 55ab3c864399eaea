// Package cache provides an optional cache for decrypted bot credentials,
// the hot lookup on every outbound send.
package cache

import (
	"context"

	"github.com/relaymesh/messaging-relay/internal/provider"
)

// CredentialCache stores decrypted provider credentials per bot.
type CredentialCache interface {
	Get(ctx context.Context, botID string) (*provider.Credentials, bool)
	Store(ctx context.Context, botID string, creds provider.Credentials) error
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, botID string) (*provider.Credentials, bool) {
	return nil, false
}

func (Noop) Store(ctx context.Context, botID string, creds provider.Credentials) error {
	return nil
}
