package model

import (
	"errors"
	"strconv"
	"time"
)

// ErrNotAMessage marks a structurally valid webhook payload that carries no
// message (status updates, read receipts). Callers acknowledge and drop it.
var ErrNotAMessage = errors.New("payload carries no message")

// WebhookPayload is the provider's webhook envelope, decoded strictly at the
// boundary. Unknown content kinds are rejected here, not propagated.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one provider account entry in a webhook delivery.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one change notification within an entry.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds the message and contact data of a change.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
	Statuses         []map[string]any `json:"statuses"`
}

// WebhookContact carries the sender's profile data.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message inside a webhook value.
type WebhookMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *WebhookText  `json:"text,omitempty"`
	Image     *WebhookMedia `json:"image,omitempty"`
	Video     *WebhookMedia `json:"video,omitempty"`
	Audio     *WebhookMedia `json:"audio,omitempty"`
}

// WebhookText is the text body of a message.
type WebhookText struct {
	Body string `json:"body"`
}

// WebhookMedia is a remote media reference; the real URL is resolved
// against the provider API.
type WebhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// InboundMessage is the normalized internal form of one inbound message.
type InboundMessage struct {
	ProviderMessageID string
	From              string
	ContactName       string
	Kind              Kind
	Body              string
	MediaID           string
	ReceivedAt        time.Time
}

// Normalize extracts the first message from the payload into the internal
// form. Returns ErrNotAMessage for status-only deliveries and a validation
// error for unknown message shapes.
func (p *WebhookPayload) Normalize() (*InboundMessage, error) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}

			msg := change.Value.Messages[0]
			in := &InboundMessage{
				ProviderMessageID: msg.ID,
				From:              msg.From,
				ReceivedAt:        parseTimestamp(msg.Timestamp),
			}
			if len(change.Value.Contacts) > 0 {
				in.ContactName = change.Value.Contacts[0].Profile.Name
			}

			switch msg.Type {
			case "text":
				if msg.Text == nil {
					return nil, errors.New("text message without text body")
				}
				in.Kind = KindText
				in.Body = msg.Text.Body
			case "image":
				if msg.Image == nil {
					return nil, errors.New("image message without media reference")
				}
				in.Kind = KindImage
				in.Body = msg.Image.Caption
				in.MediaID = msg.Image.ID
			case "video":
				if msg.Video == nil {
					return nil, errors.New("video message without media reference")
				}
				in.Kind = KindVideo
				in.Body = msg.Video.Caption
				in.MediaID = msg.Video.ID
			case "audio":
				if msg.Audio == nil {
					return nil, errors.New("audio message without media reference")
				}
				in.Kind = KindAudio
				in.MediaID = msg.Audio.ID
			default:
				return nil, errors.New("unsupported message type: " + msg.Type)
			}

			if in.From == "" {
				return nil, errors.New("message without sender")
			}

			return in, nil
		}
	}

	return nil, ErrNotAMessage
}

func parseTimestamp(ts string) time.Time {
	if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().UTC()
}
