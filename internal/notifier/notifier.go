// Package notifier turns committed message and conversation inserts into
// realtime room events. It subscribes to Postgres NOTIFY channels, so the
// fanout fires regardless of which code path performed the write and no
// handler pushes sockets directly.
package notifier

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/codec"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/realtime"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

const reconnectDelay = 5 * time.Second

// Lookup is the storage surface the notifier needs: one join per event to
// hydrate the payload and find the owning operator.
type Lookup interface {
	GetMessageWithOperator(ctx context.Context, id string) (*model.Message, string, error)
	GetConversationWithOperator(ctx context.Context, id string) (*model.Conversation, string, error)
}

// Notifier listens for row-insert notifications and republishes them as
// typed events. Delivery is best-effort at-least-once while connected;
// consumers de-duplicate by message id.
type Notifier struct {
	connString string
	lookup     Lookup
	codec      *codec.Codec
	fanout     realtime.Publisher
	logger     *logger.Logger
}

// New creates a notifier. connString is used for a dedicated LISTEN
// connection, separate from the query pool.
func New(connString string, lookup Lookup, cdc *codec.Codec, fanout realtime.Publisher, log *logger.Logger) *Notifier {
	return &Notifier{
		connString: connString,
		lookup:     lookup,
		codec:      cdc,
		fanout:     fanout,
		logger:     log,
	}
}

// Run listens until ctx is cancelled. Connection loss never crashes the
// process: the loop waits and resubscribes indefinitely.
func (n *Notifier) Run(ctx context.Context) {
	for {
		if err := n.listen(ctx); err != nil && ctx.Err() == nil {
			n.logger.Warn("notifier connection lost, resubscribing",
				zap.Duration("delay", reconnectDelay),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (n *Notifier) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, n.connString)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	for _, channel := range []string{store.ChannelNewMessage, store.ChannelNewConversation} {
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return err
		}
	}

	n.logger.Info("notifier subscribed",
		zap.Strings("channels", []string{store.ChannelNewMessage, store.ChannelNewConversation}),
	)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		switch notification.Channel {
		case store.ChannelNewMessage:
			n.handleMessage(ctx, notification.Payload)
		case store.ChannelNewConversation:
			n.handleConversation(ctx, notification.Payload)
		}
	}
}

func (n *Notifier) handleMessage(ctx context.Context, messageID string) {
	msg, operatorID, err := n.lookup.GetMessageWithOperator(ctx, messageID)
	if err != nil {
		n.logger.Error("message lookup failed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}

	body, err := n.codec.Decrypt(msg.Body)
	if err != nil {
		n.logger.Error("message decrypt failed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}

	created := model.MessageCreated{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		BotID:          msg.BotID,
		Sender:         msg.Sender,
		Body:           body,
		Kind:           msg.Kind,
		MediaURL:       msg.MediaURL,
		CreatedAt:      msg.CreatedAt,
	}
	if err := n.fanout.Publish(realtime.ConversationRoom(msg.ConversationID), model.EventMessageNew, created); err != nil {
		n.logger.Error("message fanout failed", zap.Error(err))
	}

	touched := model.ConversationTouched{
		ConversationID:  msg.ConversationID,
		LastMessage:     body,
		LastMessageTime: msg.CreatedAt,
	}
	if err := n.fanout.Publish(realtime.OwnerRoom(operatorID), model.EventConversationUpdated, touched); err != nil {
		n.logger.Error("conversation summary fanout failed", zap.Error(err))
	}
}

func (n *Notifier) handleConversation(ctx context.Context, conversationID string) {
	conv, operatorID, err := n.lookup.GetConversationWithOperator(ctx, conversationID)
	if err != nil {
		n.logger.Error("conversation lookup failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	created := model.ConversationCreated{
		ID:            conv.ID,
		BotID:         conv.BotID,
		CustomerPhone: conv.CustomerPhone,
		CustomerName:  conv.CustomerName,
		CreatedAt:     conv.CreatedAt,
	}
	if err := n.fanout.Publish(realtime.OwnerRoom(operatorID), model.EventConversationCreated, created); err != nil {
		n.logger.Error("conversation fanout failed", zap.Error(err))
	}
}
