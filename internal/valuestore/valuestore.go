package valuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/shape"
)

// Store persists records and their sparse per-field values.
type Store struct {
	db  db.Database
	now func() time.Time
}

func New(database db.Database) *Store {
	return &Store{db: database, now: time.Now}
}

// ValidateValue checks value against the shape required by the field type.
func ValidateValue(value any, field db.Field) error {
	if err := shape.Validate(value, field.Type); err != nil {
		return fmt.Errorf("field '%s': %w", field.Name, err)
	}
	return nil
}

// UpsertValue writes the value of one (record, field) slot. The field must
// belong to the record's base.
func (s *Store) UpsertValue(ctx context.Context, recordID, fieldID string, value any, actor string) (db.Value, error) {
	rec, err := s.db.GetRecord(ctx, recordID)
	if err != nil {
		return db.Value{}, db.NotFoundAs(err, "record", recordID)
	}
	field, err := s.db.GetField(ctx, fieldID)
	if err != nil {
		return db.Value{}, db.NotFoundAs(err, "field", fieldID)
	}
	if field.BaseID != rec.BaseID {
		return db.Value{}, fmt.Errorf("field '%s' is not part of the base of record '%s': %w", fieldID, recordID, apperr.ErrNotFound)
	}
	if err := ValidateValue(value, field); err != nil {
		return db.Value{}, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return db.Value{}, apperr.Validation("value is not representable as JSON")
	}

	now := db.Timestamp(s.now())
	stored, err := s.db.UpsertValue(ctx, db.Value{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		FieldID:   fieldID,
		Value:     raw,
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, db.ErrForeignKey) {
			return db.Value{}, apperr.NotFound("record", recordID)
		}
		return db.Value{}, err
	}

	slog.Debug("Value upserted", "record_id", recordID, "field_id", fieldID, "actor", actor)
	return stored, nil
}

// systemFields picks the NAME, CREATED_BY and CREATED_AT fields of a base.
func systemFields(baseID string, fields []db.Field) (map[shape.FieldType]db.Field, error) {
	found := make(map[shape.FieldType]db.Field, len(shape.SystemTypes))
	for _, f := range fields {
		if f.Type.IsSystem() {
			if _, dup := found[f.Type]; !dup {
				found[f.Type] = f
			}
		}
	}
	for _, st := range shape.SystemTypes {
		if _, ok := found[st]; !ok {
			return nil, apperr.Internal("base '%s' is missing its %s system field", baseID, st)
		}
	}
	return found, nil
}

// CreateRecord inserts a record with its three system values in one
// transaction.
func (s *Store) CreateRecord(ctx context.Context, baseID, name, actor string) (db.RecordWithValues, error) {
	if err := shape.Validate(name, shape.Name); err != nil {
		return db.RecordWithValues{}, fmt.Errorf("record name: %w", err)
	}

	var out db.RecordWithValues
	err := s.db.InTx(ctx, func(q db.Queries) error {
		if _, err := q.GetBase(ctx, baseID); err != nil {
			return db.NotFoundAs(err, "base", baseID)
		}
		fields, err := q.ListFields(ctx, baseID)
		if err != nil {
			return err
		}
		sys, err := systemFields(baseID, fields)
		if err != nil {
			return err
		}

		now := db.Timestamp(s.now())
		rec := db.Record{ID: uuid.NewString(), BaseID: baseID, CreatedAt: now}
		if err := q.InsertRecord(ctx, rec); err != nil {
			return err
		}

		initial := map[shape.FieldType]any{
			shape.CreatedBy: actor,
			shape.Name:      name,
			shape.CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		}
		joined := make([]db.FieldValue, 0, len(shape.SystemTypes))
		values := make([]db.Value, 0, len(shape.SystemTypes))
		for _, st := range shape.SystemTypes {
			raw, err := json.Marshal(initial[st])
			if err != nil {
				return err
			}
			v := db.Value{
				ID:        uuid.NewString(),
				RecordID:  rec.ID,
				FieldID:   sys[st].ID,
				Value:     raw,
				CreatedBy: actor,
				UpdatedBy: actor,
				CreatedAt: now,
				UpdatedAt: now,
			}
			values = append(values, v)
			joined = append(joined, db.FieldValue{Value: v, Field: sys[st]})
		}
		if err := q.InsertValues(ctx, values); err != nil {
			return err
		}

		out = db.RecordWithValues{Record: rec, Values: joined}
		return nil
	})
	if err != nil {
		return db.RecordWithValues{}, err
	}

	slog.Info("Record created", "base_id", baseID, "record_id", out.ID, "actor", actor)
	return out, nil
}

// DeleteRecord removes a record together with its values.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	if err := s.db.DeleteRecord(ctx, id); err != nil {
		return db.NotFoundAs(err, "record", id)
	}
	slog.Info("Record deleted", "record_id", id)
	return nil
}
