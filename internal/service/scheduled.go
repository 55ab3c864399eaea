package service

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/store"
)

// ScheduleStore is the storage surface for scheduled message management.
type ScheduleStore interface {
	CreateScheduled(ctx context.Context, sm *model.ScheduledMessage) error
	GetScheduled(ctx context.Context, id, operatorID string) (*model.ScheduledMessage, error)
	ListScheduled(ctx context.Context, operatorID string, limit, offset int) ([]model.ScheduledMessage, int, error)
	CancelScheduled(ctx context.Context, id, operatorID string) error
	GetBotByID(ctx context.Context, id string) (*model.Bot, error)
	CountConversationsForBot(ctx context.Context, ids []string, botID string) (int, error)
}

// Schedule manages deferred send requests. Edits are cancel + recreate;
// rows are never physically deleted.
type Schedule struct {
	store ScheduleStore
}

// NewSchedule creates the scheduled message service.
func NewSchedule(st ScheduleStore) *Schedule {
	return &Schedule{store: st}
}

// Create validates and stores a pending scheduled message. scheduled_for
// must be strictly in the future and every target conversation must belong
// to the named bot.
func (s *Schedule) Create(ctx context.Context, operatorID string, req *model.CreateScheduledRequest) (*model.ScheduledMessage, error) {
	if err := s.validate(ctx, operatorID, req); err != nil {
		return nil, err
	}

	sm := &model.ScheduledMessage{
		OperatorID:      operatorID,
		BotID:           req.BotID,
		ConversationIDs: req.ConversationIDs,
		Message:         req.Message,
		ScheduledFor:    req.ScheduledFor.UTC(),
	}
	if err := s.store.CreateScheduled(ctx, sm); err != nil {
		return nil, err
	}
	return sm, nil
}

// Get returns one scheduled message scoped to the operator.
func (s *Schedule) Get(ctx context.Context, operatorID, id string) (*model.ScheduledMessage, error) {
	return s.store.GetScheduled(ctx, id, operatorID)
}

// List returns the operator's scheduled messages.
func (s *Schedule) List(ctx context.Context, operatorID string, limit, offset int) (*model.ListScheduledResponse, error) {
	items, total, err := s.store.ListScheduled(ctx, operatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &model.ListScheduledResponse{Scheduled: items, Total: total}, nil
}

// Cancel transitions a pending scheduled message to cancelled.
func (s *Schedule) Cancel(ctx context.Context, operatorID, id string) error {
	err := s.store.CancelScheduled(ctx, id, operatorID)
	if errors.Is(err, store.ErrInvalidTransition) {
		return Validationf("scheduled message is not pending")
	}
	return err
}

// Update replaces a pending scheduled message: the original is cancelled
// and a new row is created, keeping the old one for audit.
func (s *Schedule) Update(ctx context.Context, operatorID, id string, req *model.CreateScheduledRequest) (*model.ScheduledMessage, error) {
	if err := s.validate(ctx, operatorID, req); err != nil {
		return nil, err
	}
	if err := s.Cancel(ctx, operatorID, id); err != nil {
		return nil, err
	}
	return s.Create(ctx, operatorID, req)
}

func (s *Schedule) validate(ctx context.Context, operatorID string, req *model.CreateScheduledRequest) error {
	if req.Message == "" {
		return Validationf("message cannot be empty")
	}
	if len(req.ConversationIDs) == 0 {
		return Validationf("at least one target conversation is required")
	}
	if !req.ScheduledFor.After(time.Now()) {
		return Validationf("scheduled_for must be in the future")
	}

	bot, err := s.store.GetBotByID(ctx, req.BotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Validationf("unknown bot")
		}
		return err
	}
	if bot.OperatorID != operatorID {
		return ErrNotOwned
	}

	count, err := s.store.CountConversationsForBot(ctx, req.ConversationIDs, bot.ID)
	if err != nil {
		return err
	}
	if count != len(req.ConversationIDs) {
		return Validationf("all target conversations must belong to the bot")
	}
	return nil
}
