package event

import (
	"context"
	"testing"

	"github.com/ensemblehq/conductor/service/messaging/memory"
	"github.com/stretchr/testify/assert"
)

type stepFinished struct {
	Step  string
	Score float64
}

func TestPublishConsume(t *testing.T) {
	queue := memory.NewQueue[Event[stepFinished]](memory.DefaultConfig())
	publisher := NewPublisher[stepFinished](queue)
	ctx := context.Background()

	evt := NewEvent(&Context{ExecutionID: "exec-1", Step: "draft", EventType: "step.finished"},
		stepFinished{Step: "draft", Score: 0.9})
	assert.NoError(t, publisher.Publish(ctx, evt))

	received, err := publisher.Consume(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "draft", received.Data.Step)
	assert.Equal(t, 0.9, received.Data.Score)
	assert.Equal(t, "exec-1", received.Context.ExecutionID)
	assert.False(t, received.CreatedAt.IsZero())
}
