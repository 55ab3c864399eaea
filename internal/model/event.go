package model

import (
	"time"
)

// Realtime event names pushed to room subscribers.
const (
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
	EventConversationCreated = "conversation:created"
)

// MessageCreated is emitted when a new message row is committed. Body is
// decrypted before emission.
type MessageCreated struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	BotID          string    `json:"bot_id"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"message"`
	Kind           Kind      `json:"type"`
	MediaURL       string    `json:"url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationTouched summarizes the latest message for conversation lists.
type ConversationTouched struct {
	ConversationID  string    `json:"conversation_id"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// ConversationCreated is emitted when a new conversation row is committed.
type ConversationCreated struct {
	ID            string    `json:"id"`
	BotID         string    `json:"bot_id"`
	CustomerPhone string    `json:"customer_phone"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
