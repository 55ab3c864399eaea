package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/cache"
	"github.com/relaymesh/messaging-relay/internal/codec"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/provider"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

// SendStore is the storage surface the outbound path needs.
type SendStore interface {
	ConversationOwnedBy(ctx context.Context, conversationID, operatorID string) (bool, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetBotByID(ctx context.Context, id string) (*model.Bot, error)
	InsertMessage(ctx context.Context, m *model.Message) error
}

// Sender handles operator-initiated outbound messages: store first, then
// deliver. An operator never loses a typed message to upstream flakiness;
// the response reports delivery status separately from storage status.
type Sender struct {
	store          SendStore
	storageBreaker *breaker.Breaker
	apiBreaker     *breaker.Breaker
	provider       provider.Client
	codec          *codec.Codec
	creds          cache.CredentialCache
	logger         *logger.Logger
}

// NewSender creates the outbound send service.
func NewSender(
	st SendStore,
	storageBreaker, apiBreaker *breaker.Breaker,
	prov provider.Client,
	cdc *codec.Codec,
	creds cache.CredentialCache,
	log *logger.Logger,
) *Sender {
	return &Sender{
		store:          st,
		storageBreaker: storageBreaker,
		apiBreaker:     apiBreaker,
		provider:       prov,
		codec:          cdc,
		creds:          creds,
		logger:         log,
	}
}

// Send persists and delivers one outbound message. Template variables in
// text are substituted with the conversation's customer data. Fanout
// happens via the change notifier on the storage commit, not here.
func (s *Sender) Send(ctx context.Context, operatorID, conversationID, text string) (*model.SendMessageResponse, error) {
	if text == "" {
		return nil, Validationf("message cannot be empty")
	}

	owned, err := s.store.ConversationOwnedBy(ctx, conversationID, operatorID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotOwned
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotOwned
		}
		return nil, err
	}

	creds, err := s.resolveCredentials(ctx, conv.BotID)
	if err != nil {
		return nil, err
	}

	body := RenderTemplate(text, conv)

	encrypted, err := s.codec.Encrypt(body)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		BotID:          conv.BotID,
		Sender:         model.SenderOperator,
		Body:           encrypted,
		Kind:           model.KindText,
		CreatedAt:      time.Now().UTC(),
	}

	err = s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		return s.store.InsertMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.SenderOperator)).Inc()

	// Delivery is best-effort from the caller's perspective: the message
	// is already durable. The message id doubles as the idempotency key
	// against double delivery on retried calls.
	resp := &model.SendMessageResponse{Success: true}
	msg.Body = body
	resp.Message = msg

	var result *provider.SendResult
	err = s.apiBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.provider.SendText(ctx, *creds, conv.CustomerPhone, body, msg.ID)
		return err
	})
	if err != nil {
		s.logger.Warn("outbound delivery failed, message stored",
			zap.String("message_id", msg.ID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		resp.DeliveryError = err.Error()
		return resp, nil
	}

	resp.MetaMessageID = &result.ProviderMessageID
	return resp, nil
}

// resolveCredentials returns decrypted provider credentials for a bot,
// consulting the cache before storage.
func (s *Sender) resolveCredentials(ctx context.Context, botID string) (*provider.Credentials, error) {
	if creds, ok := s.creds.Get(ctx, botID); ok {
		return creds, nil
	}

	var bot *model.Bot
	err := s.storageBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		bot, err = s.store.GetBotByID(ctx, botID)
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := s.codec.Decrypt(bot.AccessToken)
	if err != nil {
		return nil, err
	}

	creds := provider.Credentials{
		PhoneNumberID: bot.PhoneNumberID,
		AccessToken:   token,
	}
	if cerr := s.creds.Store(ctx, botID, creds); cerr != nil {
		s.logger.Warn("credential cache store failed", zap.Error(cerr))
	}
	return &creds, nil
}
