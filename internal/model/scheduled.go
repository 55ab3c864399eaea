package model

import (
	"time"
)

// ScheduledStatus is the lifecycle state of a deferred send. Transitions are
// one-directional: pending -> {sent, failed, cancelled}.
type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledFailed    ScheduledStatus = "failed"
	ScheduledCancelled ScheduledStatus = "cancelled"
)

// ScheduledMessage is a deferred send request targeting one or more
// conversations. Rows are never physically deleted.
type ScheduledMessage struct {
	ID              string          `json:"id"`
	OperatorID      string          `json:"user_id"`
	BotID           string          `json:"bot_id"`
	ConversationIDs []string        `json:"conversation_ids"`
	Message         string          `json:"message"`
	ScheduledFor    time.Time       `json:"scheduled_for"`
	Status          ScheduledStatus `json:"status"`
	SentAt          *time.Time      `json:"sent_at,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CreateScheduledRequest is the request to create a scheduled message.
type CreateScheduledRequest struct {
	BotID           string    `json:"bot_id"`
	ConversationIDs []string  `json:"conversation_ids"`
	Message         string    `json:"message"`
	ScheduledFor    time.Time `json:"scheduled_for"`
}

// ListScheduledResponse is the response for listing scheduled messages.
type ListScheduledResponse struct {
	Scheduled []ScheduledMessage `json:"scheduled"`
	Total     int                `json:"total"`
}
