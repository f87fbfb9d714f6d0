package core

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/schemacache"
	"github.com/nrjais/basestore/internal/shape"
)

func newService(t *testing.T) (*Service, *db.MemoryDatabase) {
	t.Helper()
	mem := db.NewMemoryDatabase()
	cfg := &config.Config{
		QueryOptions:       config.QueryConfig{DefaultLimit: 10, MaxLimit: 100},
		EnrichOptions:      config.EnrichConfig{MaxDepth: 2},
		SchemaCacheOptions: config.SchemaCacheConfig{RefreshIntervalSecs: 60},
	}
	return NewService(mem, schemacache.NewManager(mem, cfg), cfg), mem
}

func fieldValue(t *testing.T, rec map[string]any, fieldID string) any {
	t.Helper()
	values := rec["values"].(map[string]any)
	entry, ok := values[fieldID].(map[string]any)
	require.True(t, ok, "no value for field %s", fieldID)
	return entry["value"]
}

func TestService_RecordLifecycle(t *testing.T) {
	s, mem := newService(t)
	ctx := context.Background()
	mem.PutUser(db.User{ID: "alice", FirstName: lo.ToPtr("Alice")})

	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "CRM", Actor: "alice"})
	require.NoError(t, err)
	status, err := s.CreateField(ctx, CreateFieldRequest{BaseID: base.Base.ID, Name: "Status", Type: shape.SingleSelect, Actor: "alice"})
	require.NoError(t, err)
	open, err := s.CreateOption(ctx, CreateOptionRequest{FieldID: status.ID, Name: "Open", Color: lo.ToPtr("blue")})
	require.NoError(t, err)

	created, err := s.CreateRecord(ctx, CreateRecordRequest{BaseID: base.Base.ID, Name: "John", Actor: "alice"})
	require.NoError(t, err)
	recordID := created["id"].(string)
	assert.Equal(t, base.Base.ID, created["baseId"])
	assert.Len(t, created["values"], 3)

	var createdByField db.Field
	for _, f := range base.Fields {
		if f.Type == shape.CreatedBy {
			createdByField = f
		}
	}
	creator := fieldValue(t, created, createdByField.ID).(map[string]any)
	assert.Equal(t, "Alice", creator["firstName"])

	v, err := s.UpsertValue(ctx, UpsertValueRequest{RecordID: recordID, FieldID: status.ID, Value: "Open", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", v.UpdatedBy)

	got, err := s.GetRecord(ctx, recordID)
	require.NoError(t, err)
	opt := fieldValue(t, got, status.ID).(map[string]any)
	assert.Equal(t, open.ID, opt["id"])
	assert.Equal(t, "blue", opt["color"])

	page, err := s.ListRecords(ctx, ListRecordsRequest{BaseID: base.Base.ID, Filter: ParseFilter(`{"Status":"Open"}`)})
	require.NoError(t, err)
	data := page["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, recordID, data[0].(map[string]any)["id"])
	assert.Equal(t, map[string]any{"total": 1, "page": 1, "limit": 10, "totalPages": 1}, page["meta"])

	require.NoError(t, s.DeleteRecord(ctx, recordID))
	_, err = s.GetRecord(ctx, recordID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_ListRecordsMeta(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "Numbers", Actor: "u1"})
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, err := s.CreateRecord(ctx, CreateRecordRequest{BaseID: base.Base.ID, Name: "r", Actor: "u1"})
		require.NoError(t, err)
	}

	page, err := s.ListRecords(ctx, ListRecordsRequest{BaseID: base.Base.ID, Sort: "ASC", Page: lo.ToPtr(3), Limit: lo.ToPtr(10)})
	require.NoError(t, err)
	assert.Len(t, page["data"], 5)
	assert.Equal(t, map[string]any{"total": 25, "page": 3, "limit": 10, "totalPages": 3}, page["meta"])
}

func TestService_ListRecordsSortIgnoresCase(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "Letters", Actor: "u1"})
	require.NoError(t, err)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		rec, err := s.CreateRecord(ctx, CreateRecordRequest{BaseID: base.Base.ID, Name: name, Actor: "u1"})
		require.NoError(t, err)
		ids = append(ids, rec["id"].(string))
	}

	for sort, first := range map[string]string{"Asc": ids[0], "aSC": ids[0], "Desc": ids[2], "DESC": ids[2]} {
		page, err := s.ListRecords(ctx, ListRecordsRequest{BaseID: base.Base.ID, Sort: sort})
		require.NoError(t, err, sort)
		data := page["data"].([]any)
		require.Len(t, data, 3)
		assert.Equal(t, first, data[0].(map[string]any)["id"], sort)
	}
}

func TestService_Errors(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "B", Actor: "u1"})
	require.NoError(t, err)
	num, err := s.CreateField(ctx, CreateFieldRequest{BaseID: base.Base.ID, Name: "N", Type: shape.Number, Actor: "u1"})
	require.NoError(t, err)
	rec, err := s.CreateRecord(ctx, CreateRecordRequest{BaseID: base.Base.ID, Name: "r", Actor: "u1"})
	require.NoError(t, err)
	recordID := rec["id"].(string)

	testCases := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"create base without actor", func() error {
			_, err := s.CreateBase(ctx, CreateBaseRequest{Name: "x"})
			return err
		}, apperr.ErrBadRequest},
		{"create base without name", func() error {
			_, err := s.CreateBase(ctx, CreateBaseRequest{Actor: "u1"})
			return err
		}, apperr.ErrBadRequest},
		{"unknown field type", func() error {
			_, err := s.CreateField(ctx, CreateFieldRequest{BaseID: base.Base.ID, Name: "x", Type: "RATING", Actor: "u1"})
			return err
		}, apperr.ErrValidation},
		{"record in missing base", func() error {
			_, err := s.CreateRecord(ctx, CreateRecordRequest{BaseID: "nope", Name: "r", Actor: "u1"})
			return err
		}, apperr.ErrNotFound},
		{"value of wrong shape", func() error {
			_, err := s.UpsertValue(ctx, UpsertValueRequest{RecordID: recordID, FieldID: num.ID, Value: "ten", Actor: "u1"})
			return err
		}, apperr.ErrValidation},
		{"filter on unknown field", func() error {
			_, err := s.ListRecords(ctx, ListRecordsRequest{BaseID: base.Base.ID, Filter: map[string]any{"Nope": 1}})
			return err
		}, apperr.ErrBadRequest},
		{"bad sort", func() error {
			_, err := s.ListRecords(ctx, ListRecordsRequest{BaseID: base.Base.ID, Sort: "random"})
			return err
		}, apperr.ErrBadRequest},
		{"duplicate option", func() error {
			sel, err := s.CreateField(ctx, CreateFieldRequest{BaseID: base.Base.ID, Name: "S", Type: shape.SingleSelect, Actor: "u1"})
			if err != nil {
				return err
			}
			if _, err := s.CreateOption(ctx, CreateOptionRequest{FieldID: sel.ID, Name: "A"}); err != nil {
				return err
			}
			_, err = s.CreateOption(ctx, CreateOptionRequest{FieldID: sel.ID, Name: "A"})
			return err
		}, apperr.ErrConflict},
		{"delete base with records", func() error {
			return s.DeleteBase(ctx, DeleteBaseRequest{ID: base.Base.ID, Actor: "u1"})
		}, apperr.ErrConflict},
		{"missing record id", func() error {
			return s.DeleteRecord(ctx, "")
		}, apperr.ErrBadRequest},
		{"list options of missing field", func() error {
			_, err := s.ListOptions(ctx, "nope")
			return err
		}, apperr.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), tc.wantErr)
		})
	}
}

func TestService_BaseAdministration(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "Temp", Actor: "u1"})
	require.NoError(t, err)

	got, err := s.GetBase(ctx, base.Base.ID)
	require.NoError(t, err)
	assert.Len(t, got.Fields, 3)

	bases, err := s.ListBases(ctx)
	require.NoError(t, err)
	assert.Len(t, bases, 1)

	assert.ErrorIs(t, s.DeleteBase(ctx, DeleteBaseRequest{ID: base.Base.ID, Actor: "u2"}), apperr.ErrNotFound)
	require.NoError(t, s.DeleteBase(ctx, DeleteBaseRequest{ID: base.Base.ID, Actor: "u1"}))
	_, err = s.GetBase(ctx, base.Base.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_OptionUpdates(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	base, err := s.CreateBase(ctx, CreateBaseRequest{Name: "B", Actor: "u1"})
	require.NoError(t, err)
	sel, err := s.CreateField(ctx, CreateFieldRequest{BaseID: base.Base.ID, Name: "Tags", Type: shape.MultiSelect, Actor: "u1"})
	require.NoError(t, err)
	opt, err := s.CreateOption(ctx, CreateOptionRequest{FieldID: sel.ID, Name: "Old"})
	require.NoError(t, err)

	updated, err := s.UpdateOption(ctx, UpdateOptionRequest{ID: opt.ID, Name: lo.ToPtr("New"), Color: lo.ToPtr("red")})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, "red", *updated.Color)

	opts, err := s.ListOptions(ctx, sel.ID)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "New", opts[0].Name)

	require.NoError(t, s.DeleteOption(ctx, opt.ID))
	assert.ErrorIs(t, s.DeleteOption(ctx, opt.ID), apperr.ErrNotFound)

	require.NoError(t, s.DeleteField(ctx, sel.ID))
	assert.ErrorIs(t, s.DeleteField(ctx, sel.ID), apperr.ErrNotFound)
}

func TestParseFilter(t *testing.T) {
	assert.Nil(t, ParseFilter(""))
	assert.Nil(t, ParseFilter("   "))
	assert.Nil(t, ParseFilter("{not json"))
	assert.Nil(t, ParseFilter(`["Name"]`))
	assert.Equal(t, map[string]any{"Name": "John", "Age": 30.0}, ParseFilter(`{"Name":"John","Age":30}`))
}
