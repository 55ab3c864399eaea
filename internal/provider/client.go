// Package provider provides the upstream messaging API client.
package provider

import (
	"context"
)

// Credentials identifies one bot's channel on the provider.
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

// SendResult is the provider's acknowledgment of an outbound send.
type SendResult struct {
	ProviderMessageID string
}

// Client is the interface to the upstream messaging platform.
type Client interface {
	// SendText delivers a text message to a customer phone number.
	// IdempotencyKey guards against double delivery on retried calls.
	SendText(ctx context.Context, creds Credentials, to, body, idempotencyKey string) (*SendResult, error)

	// ResolveMediaURL exchanges a webhook media id for a downloadable URL.
	ResolveMediaURL(ctx context.Context, accessToken, mediaID string) (string, error)
}
