package store

import (
	"context"
	"testing"

	"github.com/ensemblehq/conductor/service/dao"
	"github.com/stretchr/testify/assert"
)

type record struct {
	ID   string
	Name string
}

func newRecordStore() *MemoryStore[string, record] {
	return NewMemoryStore[string, record](func(r *record) string { return r.ID })
}

func TestSaveAndLoad(t *testing.T) {
	store := newRecordStore()
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, &record{ID: "1", Name: "first"}))

	loaded, err := store.Load(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, "first", loaded.Name)

	// Saving under the same key overwrites.
	assert.NoError(t, store.Save(ctx, &record{ID: "1", Name: "second"}))
	loaded, err = store.Load(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, "second", loaded.Name)
}

func TestSaveNil(t *testing.T) {
	store := newRecordStore()
	assert.ErrorIs(t, store.Save(context.Background(), nil), dao.ErrNilEntity)
}

func TestLoadMissing(t *testing.T) {
	store := newRecordStore()
	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestListWithParameters(t *testing.T) {
	store := NewMemoryStore[string, record](
		func(r *record) string { return r.ID },
		func(r *record, p *dao.Parameter) bool {
			if p.Name != "name" {
				return true
			}
			value, _ := p.Value.(string)
			return r.Name == value
		})
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, &record{ID: "1", Name: "draft"}))
	assert.NoError(t, store.Save(ctx, &record{ID: "2", Name: "final"}))

	matched, err := store.List(ctx, dao.NewParameter("name", "final"))
	assert.NoError(t, err)
	assert.Len(t, matched, 1)
	assert.Equal(t, "2", matched[0].ID)

	// Parameters on a different field pass through.
	all, err := store.List(ctx, dao.NewParameter("other", "x"))
	assert.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteAndList(t *testing.T) {
	store := newRecordStore()
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, &record{ID: "1"}))
	assert.NoError(t, store.Save(ctx, &record{ID: "2"}))

	all, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	assert.NoError(t, store.Delete(ctx, "1"))
	all, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "2", all[0].ID)
}
