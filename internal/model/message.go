package model

import (
	"time"
)

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderOperator Sender = "operator"
)

// Kind is the content kind of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ValidKind reports whether k is a known content kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// Message is an immutable record of one exchanged unit. Body is stored
// encrypted; it is decrypted only at the delivery boundary. Ordering is
// by (created_at, id).
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	BotID          string    `json:"bot_id"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"message"`
	Kind           Kind      `json:"type"`
	MediaURL       string    `json:"url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageRequest is the request to send an outbound message.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// SendMessageResponse reports storage and delivery status separately:
// a stored message is never lost to upstream flakiness.
type SendMessageResponse struct {
	Success       bool     `json:"success"`
	Message       *Message `json:"message,omitempty"`
	MetaMessageID *string  `json:"metaMessageId"`
	DeliveryError string   `json:"deliveryError,omitempty"`
}

// ListMessagesResponse is the response for a windowed message read.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
