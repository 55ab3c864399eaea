package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

type fakeDispatchStore struct {
	mu     sync.Mutex
	due    []model.ScheduledMessage
	dueErr error
	sent   map[string]string // id -> note
	failed map[string]string // id -> error message
	limits []int
}

func newFakeDispatchStore(due ...model.ScheduledMessage) *fakeDispatchStore {
	return &fakeDispatchStore{
		due:    due,
		sent:   make(map[string]string),
		failed: make(map[string]string),
	}
}

func (f *fakeDispatchStore) DueScheduled(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	return f.due, nil
}

func (f *fakeDispatchStore) MarkScheduledSent(ctx context.Context, id string, sentAt time.Time, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = note
	return nil
}

func (f *fakeDispatchStore) MarkScheduledFailed(ctx context.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []string // conversation ids
	sendErr  map[string]error
	delivErr map[string]string
}

func (f *fakeSender) Send(ctx context.Context, operatorID, conversationID, text string) (*model.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, conversationID)
	if err := f.sendErr[conversationID]; err != nil {
		return nil, err
	}
	resp := &model.SendMessageResponse{Success: true}
	if msg := f.delivErr[conversationID]; msg != "" {
		resp.DeliveryError = msg
	}
	return resp, nil
}

func job(id string, convIDs ...string) model.ScheduledMessage {
	return model.ScheduledMessage{
		ID:              id,
		OperatorID:      "op1",
		BotID:           "bot1",
		ConversationIDs: convIDs,
		Message:         "promo",
		Status:          model.ScheduledPending,
	}
}

func TestDispatchAllTargetsSucceed(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore(job("j1", "c1", "c2"))
	sender := &fakeSender{}
	d := NewDispatcher(st, sender, 100, logger.NewNop())

	d.Tick(context.Background())

	st.mu.Lock()
	defer st.mu.Unlock()
	note, ok := st.sent["j1"]
	if !ok {
		t.Fatal("job not marked sent")
	}
	if note != "" {
		t.Errorf("note = %q, want empty on full success", note)
	}
	if len(st.failed) != 0 {
		t.Errorf("failed = %v, want none", st.failed)
	}
	if len(sender.calls) != 2 {
		t.Errorf("sends = %d, want 2", len(sender.calls))
	}
}

func TestDispatchPartialFailureStillSent(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore(job("j1", "c1", "c2", "c3"))
	sender := &fakeSender{
		sendErr:  map[string]error{"c2": errors.New("not owned")},
		delivErr: map[string]string{"c3": "upstream 500"},
	}
	d := NewDispatcher(st, sender, 100, logger.NewNop())

	d.Tick(context.Background())

	st.mu.Lock()
	defer st.mu.Unlock()
	note, ok := st.sent["j1"]
	if !ok {
		t.Fatal("job not marked sent (partial success counts as sent)")
	}
	if !strings.Contains(note, "2/3 targets failed") {
		t.Errorf("note = %q, want 2/3 targets failed summary", note)
	}
	if !strings.Contains(note, "c2: not owned") || !strings.Contains(note, "c3: upstream 500") {
		t.Errorf("note = %q, want per-target failures", note)
	}
}

func TestDispatchAllTargetsFail(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore(job("j1", "c1"))
	sender := &fakeSender{sendErr: map[string]error{"c1": errors.New("boom")}}
	d := NewDispatcher(st, sender, 100, logger.NewNop())

	d.Tick(context.Background())

	st.mu.Lock()
	defer st.mu.Unlock()
	errMsg, ok := st.failed["j1"]
	if !ok {
		t.Fatal("job not marked failed")
	}
	if !strings.Contains(errMsg, "c1: boom") {
		t.Errorf("error message = %q", errMsg)
	}
	if len(st.sent) != 0 {
		t.Errorf("sent = %v, want none", st.sent)
	}
}

func TestDispatchClaimFailureSkipsCycle(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore()
	st.dueErr = errors.New("postgres down")
	sender := &fakeSender{}
	d := NewDispatcher(st, sender, 100, logger.NewNop())

	d.Tick(context.Background())

	if len(sender.calls) != 0 {
		t.Errorf("sends = %d, want 0", len(sender.calls))
	}
}

func TestDispatchHonorsBatchSize(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore()
	d := NewDispatcher(st, &fakeSender{}, 25, logger.NewNop())
	d.Tick(context.Background())

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.limits) != 1 || st.limits[0] != 25 {
		t.Errorf("claim limits = %v, want [25]", st.limits)
	}
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	st := newFakeDispatchStore(job("j1", "c1"), job("j2", "c2"))
	sender := &fakeSender{}
	d := NewDispatcher(st, sender, 100, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Tick(ctx)

	if len(sender.calls) != 0 {
		t.Errorf("sends = %d, want 0 after cancellation", len(sender.calls))
	}
}
