package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
)

func TestWorkerFiresDueResumptions(t *testing.T) {
	queue := NewMemoryScheduler()
	ctx := context.Background()
	require.NoError(t, queue.Schedule(ctx, "conv-1", "t1", "step-5", 0))

	var (
		mu     sync.Mutex
		events []*model.InboundEvent
	)
	handle := func(ctx context.Context, event *model.InboundEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return nil
	}

	w := NewWorker(queue, handle, 5*time.Millisecond, &logger.Logger{Logger: zap.NewNop()})
	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	event := events[0]
	mu.Unlock()

	assert.Equal(t, model.EventResume, event.Kind)
	assert.Equal(t, "conv-1", event.ConversationID)
	assert.Equal(t, "t1", event.TenantID)
	assert.Equal(t, "step-5", event.ResumeStepID)
	assert.NotEmpty(t, event.EventID)
}

func TestWorkerStopHaltsPolling(t *testing.T) {
	queue := NewMemoryScheduler()
	w := NewWorker(queue, func(ctx context.Context, event *model.InboundEvent) error {
		return nil
	}, 5*time.Millisecond, &logger.Logger{Logger: zap.NewNop()})

	w.Start(context.Background())
	w.Stop()

	// Scheduling after Stop never fires the handler; PopDue is no longer
	// polled, so the entry just sits there.
	require.NoError(t, queue.Schedule(context.Background(), "conv-1", "t1", "s", 0))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, queue.Pending("conv-1"))
}
