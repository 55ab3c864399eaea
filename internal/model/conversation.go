// Package model defines data structures for the messaging relay.
package model

import (
	"time"
)

// Conversation represents the thread between one bot and one external customer.
// Unique per (bot, customer phone); created on first inbound message.
type Conversation struct {
	ID            string    `json:"id"`
	BotID         string    `json:"bot_id"`
	CustomerPhone string    `json:"customer_phone"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// Populated on list reads.
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
