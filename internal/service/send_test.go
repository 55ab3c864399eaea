package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/provider"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

type fakeSendStore struct {
	mu         sync.Mutex
	conv       *model.Conversation
	bot        *model.Bot
	ownedBy    string
	botLookups int
	inserted   []*model.Message
	insertErr  error
}

func (f *fakeSendStore) ConversationOwnedBy(ctx context.Context, conversationID, operatorID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conv != nil && f.conv.ID == conversationID && f.ownedBy == operatorID, nil
}

func (f *fakeSendStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conv == nil || f.conv.ID != id {
		return nil, store.ErrNotFound
	}
	return f.conv, nil
}

func (f *fakeSendStore) GetBotByID(ctx context.Context, id string) (*model.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.botLookups++
	if f.bot == nil || f.bot.ID != id {
		return nil, store.ErrNotFound
	}
	return f.bot, nil
}

func (f *fakeSendStore) InsertMessage(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, m)
	return nil
}

type memCache struct {
	mu    sync.Mutex
	creds map[string]provider.Credentials
}

func newMemCache() *memCache {
	return &memCache{creds: make(map[string]provider.Credentials)}
}

func (c *memCache) Get(ctx context.Context, botID string) (*provider.Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.creds[botID]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (c *memCache) Store(ctx context.Context, botID string, creds provider.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds[botID] = creds
	return nil
}

func newSendFixture(t *testing.T, prov *fakeProvider) (*Sender, *fakeSendStore, *memCache) {
	t.Helper()
	cdc := testCodec(t)
	token, _ := cdc.Encrypt("provider-token")
	st := &fakeSendStore{
		conv: &model.Conversation{
			ID:            "conv1",
			BotID:         "bot1",
			CustomerPhone: "5215512345678",
			CustomerName:  "Ana",
		},
		bot:     &model.Bot{ID: "bot1", PhoneNumberID: "pn1", AccessToken: token},
		ownedBy: "op1",
	}
	log := logger.NewNop()
	storageBr := breaker.New("storage", breaker.Options{FailureThreshold: 100, Timeout: time.Minute}, log)
	apiBr := breaker.New("api", breaker.Options{FailureThreshold: 100, Timeout: time.Minute}, log)
	mc := newMemCache()
	return NewSender(st, storageBr, apiBr, prov, cdc, mc, log), st, mc
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{result: provider.SendResult{ProviderMessageID: "wamid.out"}}
	s, st, _ := newSendFixture(t, prov)

	resp, err := s.Send(context.Background(), "op1", "conv1", "Gracias {nombre}!")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.Success {
		t.Error("Success = false")
	}
	if resp.MetaMessageID == nil || *resp.MetaMessageID != "wamid.out" {
		t.Errorf("MetaMessageID = %v, want wamid.out", resp.MetaMessageID)
	}
	if resp.DeliveryError != "" {
		t.Errorf("DeliveryError = %q, want empty", resp.DeliveryError)
	}
	if resp.Message == nil || resp.Message.Body != "Gracias Ana!" {
		t.Errorf("response body = %+v, want rendered template", resp.Message)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(st.inserted))
	}
	stored := st.inserted[0]
	if stored.Sender != model.SenderOperator {
		t.Errorf("Sender = %q, want operator", stored.Sender)
	}

	// Stored body is encrypted; the provider got the plaintext with the
	// message id as idempotency key.
	cdc := testCodec(t)
	plain, err := cdc.Decrypt(stored.Body)
	if err != nil || plain != "Gracias Ana!" {
		t.Errorf("stored body decrypts to %q, %v", plain, err)
	}

	prov.mu.Lock()
	defer prov.mu.Unlock()
	if len(prov.sendCalls) != 1 || prov.sendCalls[0] != stored.ID {
		t.Errorf("idempotency keys = %v, want [%s]", prov.sendCalls, stored.ID)
	}
}

func TestSendDeliveryFailureStillStores(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{sendErr: errors.New("upstream 500")}
	s, st, _ := newSendFixture(t, prov)

	resp, err := s.Send(context.Background(), "op1", "conv1", "hola")
	if err != nil {
		t.Fatalf("Send: %v (delivery failure must not be an error)", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true (message is stored)")
	}
	if resp.DeliveryError == "" {
		t.Error("DeliveryError empty, want upstream error")
	}
	if resp.MetaMessageID != nil {
		t.Errorf("MetaMessageID = %v, want nil", resp.MetaMessageID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.inserted) != 1 {
		t.Errorf("inserted = %d, want 1", len(st.inserted))
	}
}

func TestSendStorageFailureIsAnError(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{}
	s, st, _ := newSendFixture(t, prov)
	st.insertErr = errors.New("postgres down")

	if _, err := s.Send(context.Background(), "op1", "conv1", "hola"); err == nil {
		t.Fatal("Send succeeded, want storage error")
	}

	prov.mu.Lock()
	defer prov.mu.Unlock()
	if len(prov.sendCalls) != 0 {
		t.Error("provider called despite storage failure (store-first violated)")
	}
}

func TestSendRejectsForeignConversation(t *testing.T) {
	t.Parallel()

	s, _, _ := newSendFixture(t, &fakeProvider{})

	if _, err := s.Send(context.Background(), "op2", "conv1", "hola"); !errors.Is(err, ErrNotOwned) {
		t.Errorf("err = %v, want ErrNotOwned", err)
	}
	if _, err := s.Send(context.Background(), "op1", "other-conv", "hola"); !errors.Is(err, ErrNotOwned) {
		t.Errorf("err = %v, want ErrNotOwned", err)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	s, _, _ := newSendFixture(t, &fakeProvider{})
	if _, err := s.Send(context.Background(), "op1", "conv1", ""); !IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestSendCachesCredentials(t *testing.T) {
	t.Parallel()

	s, st, mc := newSendFixture(t, &fakeProvider{})
	ctx := context.Background()

	if _, err := s.Send(ctx, "op1", "conv1", "uno"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.Send(ctx, "op1", "conv1", "dos"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	st.mu.Lock()
	lookups := st.botLookups
	st.mu.Unlock()
	if lookups != 1 {
		t.Errorf("bot lookups = %d, want 1 (second send should hit the cache)", lookups)
	}

	creds, ok := mc.Get(ctx, "bot1")
	if !ok {
		t.Fatal("credentials not cached")
	}
	if creds.AccessToken != "provider-token" {
		t.Errorf("cached token = %q, want decrypted token", creds.AccessToken)
	}
}
