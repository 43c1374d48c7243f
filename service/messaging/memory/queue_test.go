package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type delivery struct {
	Execution string
	Status    string
}

func TestPublishConsumeAck(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[delivery](config)
	ctx := context.Background()

	err := queue.Publish(ctx, &delivery{Execution: "exec-1", Status: "completed"})
	assert.NoError(t, err)
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, "exec-1", message.T().Execution)

	assert.NoError(t, message.Ack())
	// Acknowledging twice is an error.
	assert.Error(t, message.Ack())
}

func TestNackRequeuesUntilDeadLetter(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[delivery](config)
	ctx := context.Background()

	assert.NoError(t, queue.Publish(ctx, &delivery{Execution: "exec-1"}))

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NoError(t, message.Nack(fmt.Errorf("endpoint down")))

	// The payload comes back after the retry delay.
	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	message, err = queue.Consume(consumeCtx)
	assert.NoError(t, err)
	assert.Equal(t, "exec-1", message.T().Execution)

	// Second failure exceeds the retry limit and dead-letters the message.
	assert.NoError(t, message.Nack(fmt.Errorf("endpoint still down")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, 1, queue.DLQSize())
}

func TestConcurrentProducersAndConsumers(t *testing.T) {
	queue := NewQueue[delivery](DefaultConfig())
	ctx := context.Background()

	producers := 5
	perProducer := 20
	total := producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				payload := &delivery{Execution: fmt.Sprintf("p%d-m%d", id, j)}
				assert.NoError(t, queue.Publish(ctx, payload))
			}
		}(i)
	}

	consumed := make(chan string, total)
	consumeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var consumers sync.WaitGroup
	consumers.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer consumers.Done()
			for {
				message, err := queue.Consume(consumeCtx)
				if err != nil {
					return
				}
				_ = message.Ack()
				consumed <- message.T().Execution
				if len(consumed) == cap(consumed) {
					cancel()
				}
			}
		}()
	}

	wg.Wait()
	consumers.Wait()
	assert.Equal(t, total, len(consumed))
}
