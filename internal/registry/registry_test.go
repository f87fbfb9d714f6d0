package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/schemacache"
	"github.com/nrjais/basestore/internal/shape"
)

func newRegistry(t *testing.T) (*Registry, *db.MemoryDatabase) {
	t.Helper()
	mem := db.NewMemoryDatabase()
	cfg := &config.Config{SchemaCacheOptions: config.SchemaCacheConfig{RefreshIntervalSecs: 60}}
	return New(mem, schemacache.NewManager(mem, cfg)), mem
}

func countTypes(fields []db.Field) map[shape.FieldType]int {
	counts := map[shape.FieldType]int{}
	for _, f := range fields {
		counts[f.Type]++
	}
	return counts
}

func TestCreateBase_CreatesExactlyOneOfEachSystemField(t *testing.T) {
	r, mem := newRegistry(t)
	ctx := context.Background()

	schema, err := r.CreateBase(ctx, "Projects", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Projects", schema.Base.Name)
	assert.Equal(t, "u1", schema.Base.CreatedBy)

	stored, err := mem.ListFields(ctx, schema.Base.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	counts := countTypes(stored)
	for _, st := range shape.SystemTypes {
		assert.Equal(t, 1, counts[st], "system type %s", st)
	}

	for _, f := range stored {
		switch f.Type {
		case shape.CreatedBy, shape.CreatedAt:
			assert.JSONEq(t, `{"readonly":true}`, string(f.Config))
		case shape.Name:
			assert.Empty(t, f.Config)
			assert.Equal(t, NameFieldName, f.Name)
		}
	}
}

func TestGetAndListBases(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	a, err := r.CreateBase(ctx, "A", "u1")
	require.NoError(t, err)
	_, err = r.CreateBase(ctx, "B", "u2")
	require.NoError(t, err)

	got, err := r.GetBase(ctx, a.Base.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Base.ID, got.Base.ID)
	assert.Len(t, got.Fields, 3)

	bases, err := r.ListBases(ctx)
	require.NoError(t, err)
	assert.Len(t, bases, 2)

	_, err = r.GetBase(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateField(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	schema, err := r.CreateBase(ctx, "Tasks", "owner")
	require.NoError(t, err)
	baseID := schema.Base.ID

	t.Run("creates field on owned base", func(t *testing.T) {
		f, err := r.CreateField(ctx, baseID, "Estimate", shape.Number, json.RawMessage(`{"decimals":2}`), "owner")
		require.NoError(t, err)
		assert.Equal(t, baseID, f.BaseID)
		assert.Equal(t, shape.Number, f.Type)
	})

	t.Run("missing base", func(t *testing.T) {
		_, err := r.CreateField(ctx, "nope", "X", shape.Number, nil, "owner")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("base owned by another actor", func(t *testing.T) {
		_, err := r.CreateField(ctx, baseID, "X", shape.Number, nil, "intruder")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.CreateField(ctx, baseID, "X", shape.FieldType("FORMULA"), nil, "owner")
		assert.ErrorIs(t, err, apperr.ErrUnsupportedType)
	})

	t.Run("system type", func(t *testing.T) {
		_, err := r.CreateField(ctx, baseID, "Another name", shape.Name, nil, "owner")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("config must be an object", func(t *testing.T) {
		_, err := r.CreateField(ctx, baseID, "X", shape.Number, json.RawMessage(`[1]`), "owner")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := r.CreateField(ctx, baseID, "  ", shape.Number, nil, "owner")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestDeleteField(t *testing.T) {
	r, mem := newRegistry(t)
	ctx := context.Background()
	schema, err := r.CreateBase(ctx, "Tasks", "owner")
	require.NoError(t, err)
	f, err := r.CreateField(ctx, schema.Base.ID, "Notes", shape.LongText, nil, "owner")
	require.NoError(t, err)

	require.NoError(t, r.DeleteField(ctx, f.ID))
	_, err = mem.GetField(ctx, f.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	assert.ErrorIs(t, r.DeleteField(ctx, f.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, r.DeleteField(ctx, schema.Fields[0].ID), apperr.ErrValidation)
}

func TestDeleteBase(t *testing.T) {
	r, mem := newRegistry(t)
	ctx := context.Background()
	schema, err := r.CreateBase(ctx, "Tasks", "owner")
	require.NoError(t, err)
	baseID := schema.Base.ID

	assert.ErrorIs(t, r.DeleteBase(ctx, baseID, "someone-else"), apperr.ErrNotFound)

	require.NoError(t, mem.InsertRecord(ctx, db.Record{ID: "r1", BaseID: baseID}))
	assert.ErrorIs(t, r.DeleteBase(ctx, baseID, "owner"), apperr.ErrConflict)

	require.NoError(t, mem.DeleteRecord(ctx, "r1"))
	require.NoError(t, r.DeleteBase(ctx, baseID, "owner"))
	assert.ErrorIs(t, r.DeleteBase(ctx, baseID, "owner"), apperr.ErrNotFound)
}

func TestOptions(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	schema, err := r.CreateBase(ctx, "Tasks", "owner")
	require.NoError(t, err)
	status, err := r.CreateField(ctx, schema.Base.ID, "Status", shape.SingleSelect, nil, "owner")
	require.NoError(t, err)
	tags, err := r.CreateField(ctx, schema.Base.ID, "Tags", shape.MultiSelect, nil, "owner")
	require.NoError(t, err)
	notes, err := r.CreateField(ctx, schema.Base.ID, "Notes", shape.LongText, nil, "owner")
	require.NoError(t, err)

	green := "#00FF00"

	t.Run("duplicate name on same field conflicts", func(t *testing.T) {
		_, err := r.CreateOption(ctx, status.ID, "Open", &green)
		require.NoError(t, err)
		_, err = r.CreateOption(ctx, status.ID, "Open", nil)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("same name on different fields succeeds", func(t *testing.T) {
		_, err := r.CreateOption(ctx, tags.ID, "Open", nil)
		assert.NoError(t, err)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := r.CreateOption(ctx, "nope", "Open", nil)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("non select field", func(t *testing.T) {
		_, err := r.CreateOption(ctx, notes.ID, "Open", nil)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("rename rechecks uniqueness excluding itself", func(t *testing.T) {
		closed, err := r.CreateOption(ctx, status.ID, "Closed", nil)
		require.NoError(t, err)

		taken := "Open"
		_, err = r.UpdateOption(ctx, closed.ID, &taken, nil)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		same := "Closed"
		red := "#FF0000"
		updated, err := r.UpdateOption(ctx, closed.ID, &same, &red)
		require.NoError(t, err)
		assert.Equal(t, "Closed", updated.Name)
		require.NotNil(t, updated.Color)
		assert.Equal(t, red, *updated.Color)
	})

	t.Run("update and delete missing option", func(t *testing.T) {
		name := "x"
		_, err := r.UpdateOption(ctx, "nope", &name, nil)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.ErrorIs(t, r.DeleteOption(ctx, "nope"), apperr.ErrNotFound)
	})

	t.Run("list and delete", func(t *testing.T) {
		opts, err := r.ListOptions(ctx, status.ID)
		require.NoError(t, err)
		require.Len(t, opts, 2)
		assert.Equal(t, "Closed", opts[0].Name)

		require.NoError(t, r.DeleteOption(ctx, opts[0].ID))
		opts, err = r.ListOptions(ctx, status.ID)
		require.NoError(t, err)
		assert.Len(t, opts, 1)

		_, err = r.ListOptions(ctx, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
