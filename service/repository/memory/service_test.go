package memory

import (
	"context"
	"testing"

	"github.com/ensemblehq/conductor/service/repository"
	"github.com/stretchr/testify/assert"
)

func TestPutGetDelete(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.NoError(t, service.Put(ctx, "docs/report", []byte(`{"title":"q3"}`)))

	value, err := service.Get(ctx, "docs/report")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"q3"}`), value)

	assert.NoError(t, service.Delete(ctx, "docs/report"))
	_, err = service.Get(ctx, "docs/report")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListByPrefix(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.NoError(t, service.Put(ctx, "docs/a", []byte("1")))
	assert.NoError(t, service.Put(ctx, "docs/b", []byte("2")))
	assert.NoError(t, service.Put(ctx, "notes/c", []byte("3")))

	keys, err := service.List(ctx, "docs/")
	assert.NoError(t, err)
	assert.Equal(t, []string{"docs/a", "docs/b"}, keys)
}

func TestGetReturnsCopy(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.NoError(t, service.Put(ctx, "key", []byte("abc")))
	value, err := service.Get(ctx, "key")
	assert.NoError(t, err)
	value[0] = 'x'

	again, err := service.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
