package memory

import (
	"context"
	"testing"

	"github.com/ensemblehq/conductor/model"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/resumption"
	"github.com/stretchr/testify/assert"
)

func TestConsumeClaimsTokenOnce(t *testing.T) {
	service := New()
	ctx := context.Background()

	snapshot := &execution.Suspended{
		ExecutionID:    "exec-1",
		Ensemble:       model.NewEnsemble("reviewed"),
		ResumeFromStep: 2,
	}
	token, err := service.Suspend(ctx, snapshot)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	loaded, err := service.Consume(ctx, token)
	assert.NoError(t, err)
	assert.Equal(t, "exec-1", loaded.ExecutionID)
	assert.Equal(t, 2, loaded.ResumeFromStep)

	_, err = service.Consume(ctx, token)
	assert.ErrorIs(t, err, resumption.ErrTokenNotFound)
}

func TestDiscardAndPending(t *testing.T) {
	service := New()
	ctx := context.Background()

	token, err := service.Suspend(ctx, &execution.Suspended{ExecutionID: "exec-1"})
	assert.NoError(t, err)

	pending, err := service.Pending(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{token}, pending)

	assert.NoError(t, service.Discard(ctx, token))
	assert.ErrorIs(t, service.Discard(ctx, token), resumption.ErrTokenNotFound)

	pending, err = service.Pending(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}
