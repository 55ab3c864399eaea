package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

// DispatchStore is the storage surface for claiming and settling jobs.
type DispatchStore interface {
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	MarkScheduledSent(ctx context.Context, id string, sentAt time.Time, note string) error
	MarkScheduledFailed(ctx context.Context, id, errMsg string) error
}

// OutboundSender is the outbound send path shared with the messages API.
type OutboundSender interface {
	Send(ctx context.Context, operatorID, conversationID, text string) (*model.SendMessageResponse, error)
}

// Dispatcher executes due scheduled messages. The per-cycle cap bounds
// worst-case cycle duration; there is no per-job cancellation.
type Dispatcher struct {
	store     DispatchStore
	sender    OutboundSender
	batchSize int
	logger    *logger.Logger
}

// NewDispatcher creates a dispatcher; its Tick is the scheduler tick
// function.
func NewDispatcher(st DispatchStore, sender OutboundSender, batchSize int, log *logger.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		store:     st,
		sender:    sender,
		batchSize: batchSize,
		logger:    log,
	}
}

// Tick claims due pending jobs and runs each to a terminal status. Errors
// are persisted onto the row itself, making them queryable rather than
// only logged.
func (d *Dispatcher) Tick(ctx context.Context) {
	jobs, err := d.store.DueScheduled(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to claim due scheduled messages", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		d.run(ctx, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job model.ScheduledMessage) {
	var failures []string
	succeeded := 0

	for _, convID := range job.ConversationIDs {
		resp, err := d.sender.Send(ctx, job.OperatorID, convID, job.Message)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %s", convID, err.Error()))
		case resp.DeliveryError != "":
			failures = append(failures, fmt.Sprintf("%s: %s", convID, resp.DeliveryError))
		default:
			succeeded++
		}
	}

	note := ""
	if len(failures) > 0 {
		note = fmt.Sprintf("%d/%d targets failed: %s",
			len(failures), len(job.ConversationIDs), strings.Join(failures, "; "))
	}

	switch {
	case succeeded == 0:
		if note == "" {
			note = "no targets"
		}
		if err := d.store.MarkScheduledFailed(ctx, job.ID, note); err != nil {
			d.logger.Error("failed to mark scheduled message failed",
				zap.String("scheduled_id", job.ID), zap.Error(err))
			return
		}
		metrics.ScheduledJobsTotal.WithLabelValues(string(model.ScheduledFailed)).Inc()
		d.logger.Warn("scheduled message failed",
			zap.String("scheduled_id", job.ID),
			zap.String("error", note),
		)
	default:
		// Partial success still counts as sent, with the aggregated
		// error note recorded for the failed targets.
		if err := d.store.MarkScheduledSent(ctx, job.ID, time.Now().UTC(), note); err != nil {
			d.logger.Error("failed to mark scheduled message sent",
				zap.String("scheduled_id", job.ID), zap.Error(err))
			return
		}
		metrics.ScheduledJobsTotal.WithLabelValues(string(model.ScheduledSent)).Inc()
		d.logger.Info("scheduled message sent",
			zap.String("scheduled_id", job.ID),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", len(failures)),
		)
	}
}
