package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/codec"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/provider"
	"github.com/relaymesh/messaging-relay/internal/queue"
	"github.com/relaymesh/messaging-relay/internal/ratelimit"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

// Inbound deliveries with an identical body for the same conversation
// inside this window are treated as provider redeliveries and dropped.
const duplicateWindow = 60 * time.Second

// IngestStore is the storage surface the ingestion pipeline needs.
type IngestStore interface {
	GetBotByKey(ctx context.Context, key string) (*model.Bot, error)
	FindOrCreateConversation(ctx context.Context, botID, phone, name string) (*model.Conversation, bool, error)
	RecentMessages(ctx context.Context, conversationID string, since time.Time) ([]model.Message, error)
	InsertMessage(ctx context.Context, m *model.Message) error
}

// Ingestor accepts inbound webhook payloads, admits them through the rate
// limiter, and persists them asynchronously via the task queue. Fanout is
// the change notifier's job, triggered by the storage commit.
type Ingestor struct {
	store          IngestStore
	queue          *queue.Queue
	limiter        *ratelimit.Limiter
	storageBreaker *breaker.Breaker
	provider       provider.Client
	codec          *codec.Codec
	maxRetries     int
	logger         *logger.Logger
}

// NewIngestor creates the ingestion pipeline.
func NewIngestor(
	st IngestStore,
	q *queue.Queue,
	limiter *ratelimit.Limiter,
	storageBreaker *breaker.Breaker,
	prov provider.Client,
	cdc *codec.Codec,
	maxRetries int,
	log *logger.Logger,
) *Ingestor {
	return &Ingestor{
		store:          st,
		queue:          q,
		limiter:        limiter,
		storageBreaker: storageBreaker,
		provider:       prov,
		codec:          cdc,
		maxRetries:     maxRetries,
		logger:         log,
	}
}

// Accept validates and enqueues one webhook delivery, returning the task id.
// It returns before any database or upstream work happens, so webhook
// response time never depends on downstream latency.
//
// Returns model.ErrNotAMessage for status-only payloads (acknowledge, do
// nothing), a ValidationError for malformed input, and a RateLimitError
// when admission is denied. Shape is checked before the bot key so that
// status-only deliveries without a key are still acknowledged.
func (s *Ingestor) Accept(botKey, callerIP string, payload *model.WebhookPayload) (string, error) {
	in, err := payload.Normalize()
	if err != nil {
		if errors.Is(err, model.ErrNotAMessage) {
			return "", err
		}
		return "", &ValidationError{Msg: err.Error()}
	}

	if botKey == "" {
		metrics.WebhooksTotal.WithLabelValues("missing_key").Inc()
		return "", Validationf("missing bot key")
	}

	res := s.limiter.Check(botKey + ":" + callerIP)
	if !res.Allowed {
		metrics.WebhooksTotal.WithLabelValues("rate_limited").Inc()
		return "", &RateLimitError{RetryAfter: time.Until(res.ResetAt)}
	}

	taskID := uuid.Must(uuid.NewV7()).String()
	s.queue.Enqueue(taskID, func(ctx context.Context) error {
		err := s.process(ctx, botKey, in)
		if errors.Is(err, ErrDuplicateMessage) {
			// The redelivery was recognized and dropped; the task succeeded.
			return nil
		}
		return err
	}, s.maxRetries)

	metrics.WebhooksTotal.WithLabelValues("queued").Inc()
	return taskID, nil
}

// process runs inside the task queue. Every database call goes through the
// storage breaker; retries rely on the duplicate check for idempotency.
func (s *Ingestor) process(ctx context.Context, botKey string, in *model.InboundMessage) error {
	var bot *model.Bot
	err := s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		bot, err = s.store.GetBotByKey(ctx, botKey)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrBotNotFound
	}
	if err != nil {
		return err
	}

	// Media URL resolution is a best-effort read against the provider:
	// failure keeps the raw media id instead of failing the task.
	mediaURL := ""
	if in.MediaID != "" {
		url, merr := s.resolveMedia(ctx, bot, in.MediaID)
		if merr != nil {
			s.logger.Warn("media url resolution failed, keeping raw id",
				zap.String("media_id", in.MediaID),
				zap.Error(merr),
			)
			mediaURL = in.MediaID
		} else {
			mediaURL = url
		}
	}

	var conv *model.Conversation
	err = s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		conv, _, err = s.store.FindOrCreateConversation(ctx, bot.ID, in.From, in.ContactName)
		return err
	})
	if err != nil {
		return err
	}

	dup, err := s.isDuplicate(ctx, conv.ID, in.Body)
	if err != nil {
		return err
	}
	if dup {
		s.logger.Info("duplicate delivery dropped",
			zap.String("conversation_id", conv.ID),
		)
		metrics.WebhooksTotal.WithLabelValues("duplicate").Inc()
		return ErrDuplicateMessage
	}

	body, err := s.codec.Encrypt(in.Body)
	if err != nil {
		return err
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		BotID:          bot.ID,
		Sender:         model.SenderCustomer,
		Body:           body,
		Kind:           in.Kind,
		MediaURL:       mediaURL,
		CreatedAt:      time.Now().UTC(),
	}

	err = s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		return s.store.InsertMessage(ctx, msg)
	})
	if err != nil {
		return err
	}

	metrics.MessagesTotal.WithLabelValues(string(model.SenderCustomer)).Inc()
	return nil
}

func (s *Ingestor) resolveMedia(ctx context.Context, bot *model.Bot, mediaID string) (string, error) {
	token, err := s.codec.Decrypt(bot.AccessToken)
	if err != nil {
		return "", err
	}
	return s.provider.ResolveMediaURL(ctx, token, mediaID)
}

// isDuplicate reports whether the same plaintext body was already recorded
// for this conversation within the duplicate window. Bodies are encrypted
// with random nonces, so comparison happens after decryption.
func (s *Ingestor) isDuplicate(ctx context.Context, conversationID, body string) (bool, error) {
	var recent []model.Message
	err := s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		recent, err = s.store.RecentMessages(ctx, conversationID, time.Now().Add(-duplicateWindow))
		return err
	})
	if err != nil {
		return false, err
	}

	for _, m := range recent {
		if m.Sender != model.SenderCustomer {
			continue
		}
		plain, derr := s.codec.Decrypt(m.Body)
		if derr != nil {
			continue
		}
		if plain == body {
			return true, nil
		}
	}
	return false, nil
}
