package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
	"github.com/civicdesk/chatflow/pkg/metrics"
)

// Queue is the subset of the scheduler the worker drains.
type Queue interface {
	PopDue(ctx context.Context, now time.Time) ([]Resumption, error)
}

// HandleFunc re-enters the flow runner with a synthesized resume event.
type HandleFunc func(ctx context.Context, event *model.InboundEvent) error

// Worker polls the delay queue and fires due resumptions back into the
// runner. The runner's per-conversation lock serializes a resumption
// against any organic message racing it.
type Worker struct {
	queue    Queue
	handle   HandleFunc
	interval time.Duration
	log      *logger.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewWorker creates a delay queue worker.
func NewWorker(queue Queue, handle HandleFunc, interval time.Duration, log *logger.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		queue:    queue,
		handle:   handle,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the polling loop and waits for it to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.fire(ctx, now)
		}
	}
}

func (w *Worker) fire(ctx context.Context, now time.Time) {
	due, err := w.queue.PopDue(ctx, now)
	if err != nil {
		w.log.Error("delay queue poll failed", zap.Error(err))
		return
	}
	for _, r := range due {
		event := &model.InboundEvent{
			EventID:        uuid.Must(uuid.NewV7()).String(),
			ConversationID: r.ConversationID,
			TenantID:       r.TenantID,
			Kind:           model.EventResume,
			ResumeStepID:   r.ResumeStepID,
			ReceivedAt:     now,
		}
		if err := w.handle(ctx, event); err != nil {
			w.log.Error("delayed resumption failed",
				zap.String("conversation_id", r.ConversationID),
				zap.Error(err))
			continue
		}
		metrics.DelayedResumptions.WithLabelValues("fired").Inc()
	}
}
