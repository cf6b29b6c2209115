package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySchedulerScheduleAndPop(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "conv-1", "t1", "step-5", 10*time.Millisecond))
	require.NoError(t, s.Schedule(ctx, "conv-2", "t1", "step-9", time.Hour))
	assert.True(t, s.Pending("conv-1"))

	// Nothing is due yet.
	due, err := s.PopDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.PopDue(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "conv-1", due[0].ConversationID)
	assert.Equal(t, "step-5", due[0].ResumeStepID)

	// Popped entries are gone; the far-future one stays.
	assert.False(t, s.Pending("conv-1"))
	assert.True(t, s.Pending("conv-2"))
}

func TestMemorySchedulerReplacesPending(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "conv-1", "t1", "step-5", time.Hour))
	require.NoError(t, s.Schedule(ctx, "conv-1", "t1", "step-9", 0))

	due, err := s.PopDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "step-9", due[0].ResumeStepID)
}

func TestMemorySchedulerCancel(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "conv-1", "t1", "step-5", 0))
	require.NoError(t, s.Cancel(ctx, "conv-1"))

	due, err := s.PopDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Cancelling nothing is fine.
	assert.NoError(t, s.Cancel(ctx, "conv-1"))
}
