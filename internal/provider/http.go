package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to a Graph-style messaging API over HTTPS.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a provider client against baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendTextResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type mediaResponse struct {
	URL   string    `json:"url"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SendText implements Client.
func (c *HTTPClient) SendText(ctx context.Context, creds Credentials, to, body, idempotencyKey string) (*SendResult, error) {
	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider send failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("provider response read failed: %w", err)
	}

	var out sendTextResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("provider response decode failed: %w", err)
	}

	if resp.StatusCode >= 400 || out.Error != nil {
		msg := "unknown provider error"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("provider send rejected (status %d): %s", resp.StatusCode, msg)
	}
	if len(out.Messages) == 0 {
		return nil, fmt.Errorf("provider send returned no message id")
	}

	return &SendResult{ProviderMessageID: out.Messages[0].ID}, nil
}

// ResolveMediaURL implements Client.
func (c *HTTPClient) ResolveMediaURL(ctx context.Context, accessToken, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("media lookup failed: %w", err)
	}
	defer resp.Body.Close()

	var out mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("media response decode failed: %w", err)
	}

	if resp.StatusCode >= 400 || out.Error != nil {
		msg := "unknown provider error"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("media lookup rejected (status %d): %s", resp.StatusCode, msg)
	}
	if out.URL == "" {
		return "", fmt.Errorf("media lookup returned no url")
	}

	return out.URL, nil
}
