package service

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/messaging-relay/internal/codec"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/store"
)

// QueryStore is the storage surface for operator reads.
type QueryStore interface {
	ListConversations(ctx context.Context, operatorID string, limit, offset int) ([]model.Conversation, int, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]model.Message, bool, error)
	ConversationOwnedBy(ctx context.Context, conversationID, operatorID string) (bool, error)
}

// Query serves operator read endpoints, decrypting bodies at the boundary.
type Query struct {
	store QueryStore
	codec *codec.Codec
}

// NewQuery creates the read service.
func NewQuery(st QueryStore, cdc *codec.Codec) *Query {
	return &Query{store: st, codec: cdc}
}

// ListConversations returns the operator's conversations ordered by
// last-message time descending, conversations without messages last.
func (q *Query) ListConversations(ctx context.Context, operatorID string, limit, offset int) (*model.ListConversationsResponse, error) {
	convs, total, err := q.store.ListConversations(ctx, operatorID, limit, offset)
	if err != nil {
		return nil, err
	}

	for i := range convs {
		if convs[i].LastMessage == "" {
			continue
		}
		if plain, derr := q.codec.Decrypt(convs[i].LastMessage); derr == nil {
			convs[i].LastMessage = plain
		}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// ListMessages returns a windowed ascending read of a conversation's
// messages, scoped to the operator.
func (q *Query) ListMessages(ctx context.Context, operatorID, conversationID string, limit int, before time.Time) (*model.ListMessagesResponse, error) {
	owned, err := q.store.ConversationOwnedBy(ctx, conversationID, operatorID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotOwned
	}

	msgs, hasMore, err := q.store.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotOwned
		}
		return nil, err
	}

	for i := range msgs {
		if plain, derr := q.codec.Decrypt(msgs[i].Body); derr == nil {
			msgs[i].Body = plain
		}
	}

	return &model.ListMessagesResponse{Messages: msgs, HasMore: hasMore}, nil
}
