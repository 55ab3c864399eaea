package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func decodePayload(t *testing.T, raw string) *WebhookPayload {
	t.Helper()
	var p WebhookPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return &p
}

func TestNormalizeTextMessage(t *testing.T) {
	t.Parallel()

	p := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "123",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"contacts": [{"wa_id": "5215512345678", "profile": {"name": "Ana"}}],
					"messages": [{
						"id": "wamid.abc",
						"from": "5215512345678",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "hola"}
					}]
				}
			}]
		}]
	}`)

	in, err := p.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if in.ProviderMessageID != "wamid.abc" {
		t.Errorf("ProviderMessageID = %q", in.ProviderMessageID)
	}
	if in.From != "5215512345678" {
		t.Errorf("From = %q", in.From)
	}
	if in.ContactName != "Ana" {
		t.Errorf("ContactName = %q", in.ContactName)
	}
	if in.Kind != KindText {
		t.Errorf("Kind = %q, want %q", in.Kind, KindText)
	}
	if in.Body != "hola" {
		t.Errorf("Body = %q", in.Body)
	}
	if want := time.Unix(1700000000, 0).UTC(); !in.ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v, want %v", in.ReceivedAt, want)
	}
}

func TestNormalizeMediaMessage(t *testing.T) {
	t.Parallel()

	p := decodePayload(t, `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"id": "wamid.img",
						"from": "5215512345678",
						"timestamp": "1700000000",
						"type": "image",
						"image": {"id": "media-42", "mime_type": "image/jpeg", "caption": "mira"}
					}]
				}
			}]
		}]
	}`)

	in, err := p.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if in.Kind != KindImage {
		t.Errorf("Kind = %q, want %q", in.Kind, KindImage)
	}
	if in.MediaID != "media-42" {
		t.Errorf("MediaID = %q, want media-42", in.MediaID)
	}
	if in.Body != "mira" {
		t.Errorf("Body = %q, want caption", in.Body)
	}
}

func TestNormalizeStatusOnlyPayload(t *testing.T) {
	t.Parallel()

	p := decodePayload(t, `{
		"entry": [{
			"changes": [{
				"value": {
					"statuses": [{"id": "wamid.abc", "status": "delivered"}]
				}
			}]
		}]
	}`)

	if _, err := p.Normalize(); !errors.Is(err, ErrNotAMessage) {
		t.Errorf("err = %v, want ErrNotAMessage", err)
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	t.Parallel()

	p := &WebhookPayload{}
	if _, err := p.Normalize(); !errors.Is(err, ErrNotAMessage) {
		t.Errorf("err = %v, want ErrNotAMessage", err)
	}
}

func TestNormalizeRejectsUnknownType(t *testing.T) {
	t.Parallel()

	p := decodePayload(t, `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"id": "wamid.x",
						"from": "5215512345678",
						"type": "sticker"
					}]
				}
			}]
		}]
	}`)

	_, err := p.Normalize()
	if err == nil || errors.Is(err, ErrNotAMessage) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestNormalizeRejectsMissingBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"text without body", `{"entry":[{"changes":[{"value":{"messages":[{"id":"1","from":"52","type":"text"}]}}]}]}`},
		{"image without media", `{"entry":[{"changes":[{"value":{"messages":[{"id":"1","from":"52","type":"image"}]}}]}]}`},
		{"missing sender", `{"entry":[{"changes":[{"value":{"messages":[{"id":"1","type":"text","text":{"body":"hi"}}]}}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodePayload(t, tt.raw)
			if _, err := p.Normalize(); err == nil {
				t.Error("Normalize succeeded, want error")
			}
		})
	}
}

func TestParseTimestampFallback(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC()
	got := parseTimestamp("not-a-number")
	if got.Before(before.Add(-time.Second)) {
		t.Errorf("fallback timestamp %v not near now", got)
	}
}
