package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/basestore/internal/shape"
)

func seedBase(t *testing.T, m *MemoryDatabase) (Base, Field) {
	t.Helper()
	ctx := context.Background()
	base := Base{ID: "b1", Name: "Tasks", CreatedBy: "u1", CreatedAt: time.Now()}
	require.NoError(t, m.InsertBase(ctx, base))
	field := Field{ID: "f-status", BaseID: base.ID, Name: "Status", Type: shape.SingleSelect}
	require.NoError(t, m.InsertFields(ctx, []Field{field}))
	return base, field
}

func TestMemoryDatabase_InTxRollsBackOnError(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, _ := seedBase(t, m)

	boom := errors.New("boom")
	err := m.InTx(ctx, func(q Queries) error {
		require.NoError(t, q.InsertRecord(ctx, Record{ID: "r1", BaseID: base.ID, CreatedAt: time.Now()}))
		_, err := q.GetRecord(ctx, "r1")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetRecord(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDatabase_InTxCommits(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, field := seedBase(t, m)

	err := m.InTx(ctx, func(q Queries) error {
		if err := q.InsertRecord(ctx, Record{ID: "r1", BaseID: base.ID, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return q.InsertValues(ctx, []Value{{ID: "v1", RecordID: "r1", FieldID: field.ID, Value: json.RawMessage(`"Open"`)}})
	})
	require.NoError(t, err)

	values, err := m.ListRecordValues(ctx, []string{"r1"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Status", values[0].Field.Name)
}

func TestMemoryDatabase_UpsertValueKeepsOneRowPerSlot(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, field := seedBase(t, m)
	require.NoError(t, m.InsertRecord(ctx, Record{ID: "r1", BaseID: base.ID, CreatedAt: time.Now()}))

	first, err := m.UpsertValue(ctx, Value{ID: "v1", RecordID: "r1", FieldID: field.ID, Value: json.RawMessage(`"Open"`), CreatedBy: "u1", UpdatedBy: "u1"})
	require.NoError(t, err)
	second, err := m.UpsertValue(ctx, Value{ID: "v2", RecordID: "r1", FieldID: field.ID, Value: json.RawMessage(`"Closed"`), CreatedBy: "u2", UpdatedBy: "u2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "u1", second.CreatedBy)
	assert.Equal(t, "u2", second.UpdatedBy)

	values, err := m.ListRecordValues(ctx, []string{"r1"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.JSONEq(t, `"Closed"`, string(values[0].Value.Value))
}

func TestMemoryDatabase_UpsertValueRejectsMissingRecord(t *testing.T) {
	m := NewMemoryDatabase()
	_, field := seedBase(t, m)

	_, err := m.UpsertValue(context.Background(), Value{ID: "v1", RecordID: "nope", FieldID: field.ID})
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestMemoryDatabase_OptionNamesUniquePerField(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, field := seedBase(t, m)
	other := Field{ID: "f-prio", BaseID: base.ID, Name: "Priority", Type: shape.SingleSelect}
	require.NoError(t, m.InsertFields(ctx, []Field{other}))

	require.NoError(t, m.InsertOption(ctx, Option{ID: "o1", FieldID: field.ID, Name: "High"}))
	assert.ErrorIs(t, m.InsertOption(ctx, Option{ID: "o2", FieldID: field.ID, Name: "High"}), ErrDuplicate)
	assert.NoError(t, m.InsertOption(ctx, Option{ID: "o3", FieldID: other.ID, Name: "High"}))

	require.NoError(t, m.InsertOption(ctx, Option{ID: "o4", FieldID: field.ID, Name: "Low"}))
	assert.ErrorIs(t, m.UpdateOption(ctx, Option{ID: "o4", Name: "High"}), ErrDuplicate)
	assert.NoError(t, m.UpdateOption(ctx, Option{ID: "o1", Name: "High"}))
}

func TestMemoryDatabase_FindOption(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	_, field := seedBase(t, m)
	require.NoError(t, m.InsertOption(ctx, Option{ID: "o1", FieldID: field.ID, Name: "Open"}))

	byID, err := m.FindOption(ctx, field.ID, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Open", byID.Name)

	byName, err := m.FindOption(ctx, field.ID, "Open")
	require.NoError(t, err)
	assert.Equal(t, "o1", byName.ID)

	_, err = m.FindOption(ctx, "other-field", "o1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDatabase_FindRecordsFiltersAndPages(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, field := seedBase(t, m)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []string{"Open", "Closed", "Open", "Open"} {
		id := string(rune('a' + i))
		require.NoError(t, m.InsertRecord(ctx, Record{ID: id, BaseID: base.ID, CreatedAt: start.Add(time.Duration(i) * time.Minute)}))
		raw, _ := json.Marshal(status)
		require.NoError(t, m.InsertValues(ctx, []Value{{ID: "v" + id, RecordID: id, FieldID: field.ID, Value: raw}}))
	}

	q := RecordQuery{
		BaseID:  base.ID,
		Filters: []ValueFilter{{FieldID: field.ID, Value: json.RawMessage(`"Open"`)}},
		Sort:    SortAsc,
		Limit:   2,
	}
	total, err := m.CountMatching(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	page, err := m.FindRecords(ctx, q)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	q.Sort = SortDesc
	q.Offset = 2
	page, err = m.FindRecords(ctx, q)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	q.Offset = -8446744073709551626
	page, err = m.FindRecords(ctx, q)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
}

func TestMemoryDatabase_DeleteBaseWithRecords(t *testing.T) {
	m := NewMemoryDatabase()
	ctx := context.Background()
	base, field := seedBase(t, m)
	require.NoError(t, m.InsertOption(ctx, Option{ID: "o1", FieldID: field.ID, Name: "Open"}))
	require.NoError(t, m.InsertRecord(ctx, Record{ID: "r1", BaseID: base.ID, CreatedAt: time.Now()}))

	assert.ErrorIs(t, m.DeleteBase(ctx, base.ID), ErrForeignKey)

	require.NoError(t, m.DeleteRecord(ctx, "r1"))
	require.NoError(t, m.DeleteBase(ctx, base.ID))

	_, err := m.GetField(ctx, field.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetOption(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONEqual(t *testing.T) {
	eq, err := jsonEqual(json.RawMessage(`{"a":1,"b":[1,2]}`), json.RawMessage(`{"b":[1,2],"a":1.0}`))
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = jsonEqual(json.RawMessage(`"1"`), json.RawMessage(`1`))
	require.NoError(t, err)
	assert.False(t, eq)

	eq, err = jsonEqual(nil, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.True(t, eq)
}
