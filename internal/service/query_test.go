package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/internal/model"
)

type fakeQueryStore struct {
	convs   []model.Conversation
	total   int
	msgs    []model.Message
	hasMore bool
	owned   bool
}

func (f *fakeQueryStore) ListConversations(ctx context.Context, operatorID string, limit, offset int) ([]model.Conversation, int, error) {
	return f.convs, f.total, nil
}

func (f *fakeQueryStore) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]model.Message, bool, error) {
	return f.msgs, f.hasMore, nil
}

func (f *fakeQueryStore) ConversationOwnedBy(ctx context.Context, conversationID, operatorID string) (bool, error) {
	return f.owned, nil
}

func TestQueryListConversationsDecryptsPreviews(t *testing.T) {
	t.Parallel()

	cdc := testCodec(t)
	enc, _ := cdc.Encrypt("last message text")
	st := &fakeQueryStore{
		convs: []model.Conversation{
			{ID: "c1", LastMessage: enc},
			{ID: "c2"}, // no messages yet
		},
		total: 10,
	}
	q := NewQuery(st, cdc)

	resp, err := q.ListConversations(context.Background(), "op1", 2, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if resp.Conversations[0].LastMessage != "last message text" {
		t.Errorf("LastMessage = %q, want decrypted preview", resp.Conversations[0].LastMessage)
	}
	if resp.Conversations[1].LastMessage != "" {
		t.Errorf("empty preview mutated: %q", resp.Conversations[1].LastMessage)
	}
	if !resp.HasMore {
		t.Error("HasMore = false, want true (2 of 10)")
	}
}

func TestQueryListMessages(t *testing.T) {
	t.Parallel()

	cdc := testCodec(t)
	enc, _ := cdc.Encrypt("hola")
	st := &fakeQueryStore{
		owned:   true,
		msgs:    []model.Message{{ID: "m1", Body: enc}},
		hasMore: true,
	}
	q := NewQuery(st, cdc)

	resp, err := q.ListMessages(context.Background(), "op1", "c1", 50, time.Time{})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if resp.Messages[0].Body != "hola" {
		t.Errorf("Body = %q, want decrypted", resp.Messages[0].Body)
	}
	if !resp.HasMore {
		t.Error("HasMore = false, want true")
	}
}

func TestQueryListMessagesOwnership(t *testing.T) {
	t.Parallel()

	st := &fakeQueryStore{owned: false}
	q := NewQuery(st, testCodec(t))

	if _, err := q.ListMessages(context.Background(), "op1", "c1", 50, time.Time{}); !errors.Is(err, ErrNotOwned) {
		t.Errorf("err = %v, want ErrNotOwned", err)
	}
}
