package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTracker() *Tracker {
	return NewTracker(NewStore(), WithGraceDelay(10*time.Millisecond))
}

func TestSubscribeSnapshotThenEvents(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 2))
	assert.NoError(t, tracker.Progress(ctx, "exec-1", "research", 0, "findings"))

	snapshot, events, err := tracker.Subscribe(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, StateRunning, snapshot.State)
	assert.Equal(t, 1, snapshot.CompletedSteps)
	assert.Len(t, snapshot.Events, 2)

	assert.NoError(t, tracker.Progress(ctx, "exec-1", "write", 1, "draft"))
	assert.NoError(t, tracker.Complete(ctx, "exec-1", "draft"))

	var received []Event
	for event := range events {
		received = append(received, event)
	}
	// Only events after the snapshot arrive, then the channel closes on the
	// terminal transition.
	assert.Len(t, received, 2)
	assert.Equal(t, EventProgress, received[0].Type)
	assert.Equal(t, EventCompleted, received[1].Type)
}

func TestTerminalStatePersisted(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 1))
	assert.NoError(t, tracker.Fail(ctx, "exec-1", assert.AnError))

	record, err := tracker.Status(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, StateFailed, record.State)
	assert.NotEmpty(t, record.Error)

	// Terminal executions are still subscribable: snapshot plus a closed
	// channel.
	snapshot, events, err := tracker.Subscribe(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, StateFailed, snapshot.State)
	_, open := <-events
	assert.False(t, open)
}

func TestEventOrderIsStrict(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 3))
	for i := 0; i < 3; i++ {
		assert.NoError(t, tracker.Progress(ctx, "exec-1", "step", i, nil))
	}
	assert.NoError(t, tracker.Complete(ctx, "exec-1", nil))

	record, err := tracker.Status(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Len(t, record.Events, 5)
	assert.Equal(t, EventStarted, record.Events[0].Type)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, EventProgress, record.Events[i].Type)
		assert.Equal(t, i-1, record.Events[i].Index)
	}
	assert.Equal(t, EventCompleted, record.Events[4].Type)
	assert.Equal(t, 3, record.CompletedSteps)
}

func TestParkKeepsRecordAcrossSuspension(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 3))
	assert.NoError(t, tracker.Progress(ctx, "exec-1", "research", 0, nil))
	assert.NoError(t, tracker.Park(ctx, "exec-1"))

	// The record survives parking and is served from the store.
	record, err := tracker.Status(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, StateRunning, record.State)
	assert.Equal(t, 1, record.CompletedSteps)

	snapshot, events, err := tracker.Subscribe(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, snapshot.CompletedSteps)
	_, open := <-events
	assert.False(t, open)

	// Restarting the id resumes the same record instead of opening a new
	// one.
	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 3))
	assert.NoError(t, tracker.Progress(ctx, "exec-1", "review", 1, nil))
	assert.NoError(t, tracker.Complete(ctx, "exec-1", "done"))

	record, err = tracker.Status(ctx, "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, StateCompleted, record.State)
	assert.Equal(t, 2, record.CompletedSteps)
	assert.Len(t, record.Events, 5)

	assert.ErrorIs(t, tracker.Park(ctx, "exec-1"), ErrUnknownExecution)
}

func TestListFiltersByState(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.NoError(t, tracker.Start(ctx, "exec-1", "pipeline", 1))
	assert.NoError(t, tracker.Complete(ctx, "exec-1", nil))
	assert.NoError(t, tracker.Start(ctx, "exec-2", "pipeline", 1))
	assert.NoError(t, tracker.Fail(ctx, "exec-2", assert.AnError))
	assert.NoError(t, tracker.Start(ctx, "exec-3", "pipeline", 1))

	all, err := tracker.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	failed, err := tracker.List(ctx, StateFailed)
	assert.NoError(t, err)
	assert.Len(t, failed, 1)
	assert.Equal(t, "exec-2", failed[0].ID)

	terminal, err := tracker.List(ctx, StateCompleted, StateFailed)
	assert.NoError(t, err)
	assert.Len(t, terminal, 2)
}

func TestUnknownExecution(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	assert.ErrorIs(t, tracker.Progress(ctx, "ghost", "step", 0, nil), ErrUnknownExecution)
	_, err := tracker.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownExecution)
	_, _, err = tracker.Subscribe(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownExecution)
}
