package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/schemacache"
	"github.com/nrjais/basestore/internal/shape"
)

// Default names of the system fields created with every base.
const (
	NameFieldName      = "Name"
	CreatedByFieldName = "Created by"
	CreatedAtFieldName = "Created at"
)

var readonlyConfig = json.RawMessage(`{"readonly":true}`)

// Registry owns the schema of every base: its fields and select options.
type Registry struct {
	db    db.Database
	cache *schemacache.Manager
	now   func() time.Time
}

func New(database db.Database, cache *schemacache.Manager) *Registry {
	return &Registry{db: database, cache: cache, now: time.Now}
}

// BaseSchema is a base together with its fields in creation order.
type BaseSchema struct {
	Base   db.Base
	Fields []db.Field
}

func (r *Registry) CreateBase(ctx context.Context, name, actor string) (BaseSchema, error) {
	now := db.Timestamp(r.now())
	base := db.Base{ID: uuid.NewString(), Name: name, CreatedBy: actor, CreatedAt: now}
	fields := []db.Field{
		{ID: uuid.NewString(), BaseID: base.ID, Name: NameFieldName, Type: shape.Name, CreatedAt: now},
		{ID: uuid.NewString(), BaseID: base.ID, Name: CreatedByFieldName, Type: shape.CreatedBy, Config: readonlyConfig, CreatedAt: now.Add(time.Microsecond)},
		{ID: uuid.NewString(), BaseID: base.ID, Name: CreatedAtFieldName, Type: shape.CreatedAt, Config: readonlyConfig, CreatedAt: now.Add(2 * time.Microsecond)},
	}

	err := r.db.InTx(ctx, func(q db.Queries) error {
		if err := q.InsertBase(ctx, base); err != nil {
			return err
		}
		return q.InsertFields(ctx, fields)
	})
	if err != nil {
		return BaseSchema{}, fmt.Errorf("failed to create base '%s': %w", name, err)
	}

	slog.Info("Base created", "base_id", base.ID, "actor", actor)
	return BaseSchema{Base: base, Fields: fields}, nil
}

func (r *Registry) GetBase(ctx context.Context, id string) (BaseSchema, error) {
	base, err := r.db.GetBase(ctx, id)
	if err != nil {
		return BaseSchema{}, db.NotFoundAs(err, "base", id)
	}
	fields, err := r.db.ListFields(ctx, id)
	if err != nil {
		return BaseSchema{}, err
	}
	return BaseSchema{Base: base, Fields: fields}, nil
}

func (r *Registry) ListBases(ctx context.Context) ([]db.Base, error) {
	return r.db.ListBases(ctx)
}

// ownedBase loads a base and hides it from actors other than its creator.
func (r *Registry) ownedBase(ctx context.Context, id, actor string) (db.Base, error) {
	base, err := r.db.GetBase(ctx, id)
	if err != nil {
		return db.Base{}, db.NotFoundAs(err, "base", id)
	}
	if base.CreatedBy != actor {
		return db.Base{}, apperr.NotFound("base", id)
	}
	return base, nil
}

// DeleteBase removes an empty base with its fields and options. Bases that
// still hold records are rejected with a conflict.
func (r *Registry) DeleteBase(ctx context.Context, id, actor string) error {
	if _, err := r.ownedBase(ctx, id, actor); err != nil {
		return err
	}
	n, err := r.db.CountRecords(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("base '%s' still has %d records", id, n)
	}
	if err := r.db.DeleteBase(ctx, id); err != nil {
		if errors.Is(err, db.ErrForeignKey) {
			return apperr.Conflict("base '%s' still has records", id)
		}
		return db.NotFoundAs(err, "base", id)
	}
	r.cache.Invalidate(id)
	slog.Info("Base deleted", "base_id", id, "actor", actor)
	return nil
}

func (r *Registry) CreateField(ctx context.Context, baseID, name string, fieldType shape.FieldType, config json.RawMessage, actor string) (db.Field, error) {
	if strings.TrimSpace(name) == "" {
		return db.Field{}, apperr.Validation("field name must not be empty")
	}
	if !fieldType.Valid() {
		return db.Field{}, fmt.Errorf("field '%s' of type '%s': %w", name, fieldType, apperr.ErrUnsupportedType)
	}
	if fieldType.IsSystem() {
		return db.Field{}, apperr.Validation("field type '%s' is managed by the system", fieldType)
	}
	if err := checkConfig(config); err != nil {
		return db.Field{}, err
	}
	if _, err := r.ownedBase(ctx, baseID, actor); err != nil {
		return db.Field{}, err
	}

	field := db.Field{
		ID:        uuid.NewString(),
		BaseID:    baseID,
		Name:      name,
		Type:      fieldType,
		Config:    config,
		CreatedAt: db.Timestamp(r.now()),
	}
	if err := r.db.InsertFields(ctx, []db.Field{field}); err != nil {
		if errors.Is(err, db.ErrForeignKey) {
			return db.Field{}, apperr.NotFound("base", baseID)
		}
		return db.Field{}, err
	}
	r.cache.Invalidate(baseID)

	slog.Info("Field created", "base_id", baseID, "field_id", field.ID, "type", fieldType)
	return field, nil
}

func checkConfig(config json.RawMessage) error {
	if len(config) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(config, &obj); err != nil {
		return apperr.Validation("field config must be a JSON object")
	}
	return nil
}

// DeleteField removes a field. Its values go with it; system fields cannot be
// removed since every record depends on them.
func (r *Registry) DeleteField(ctx context.Context, id string) error {
	field, err := r.db.GetField(ctx, id)
	if err != nil {
		return db.NotFoundAs(err, "field", id)
	}
	if field.Type.IsSystem() {
		return apperr.Validation("system field '%s' cannot be deleted", id)
	}
	if err := r.db.DeleteField(ctx, id); err != nil {
		return db.NotFoundAs(err, "field", id)
	}
	r.cache.Invalidate(field.BaseID)

	slog.Info("Field deleted", "base_id", field.BaseID, "field_id", id)
	return nil
}

func (r *Registry) CreateOption(ctx context.Context, fieldID, name string, color *string) (db.Option, error) {
	if strings.TrimSpace(name) == "" {
		return db.Option{}, apperr.Validation("option name must not be empty")
	}
	field, err := r.db.GetField(ctx, fieldID)
	if err != nil {
		return db.Option{}, db.NotFoundAs(err, "field", fieldID)
	}
	if !field.Type.IsSelect() {
		return db.Option{}, apperr.Validation("field '%s' of type '%s' does not take options", fieldID, field.Type)
	}

	opt := db.Option{ID: uuid.NewString(), FieldID: fieldID, Name: name, Color: color}
	if err := r.db.InsertOption(ctx, opt); err != nil {
		switch {
		case errors.Is(err, db.ErrDuplicate):
			return db.Option{}, apperr.Conflict("option name '%s' must be unique within field '%s'", name, fieldID)
		case errors.Is(err, db.ErrForeignKey):
			return db.Option{}, apperr.NotFound("field", fieldID)
		}
		return db.Option{}, err
	}

	slog.Debug("Option created", "field_id", fieldID, "option_id", opt.ID)
	return opt, nil
}

// UpdateOption applies the non-nil changes. A rename must stay unique among
// the other options of the field.
func (r *Registry) UpdateOption(ctx context.Context, id string, name, color *string) (db.Option, error) {
	opt, err := r.db.GetOption(ctx, id)
	if err != nil {
		return db.Option{}, db.NotFoundAs(err, "option", id)
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return db.Option{}, apperr.Validation("option name must not be empty")
		}
		opt.Name = *name
	}
	if color != nil {
		opt.Color = color
	}

	if err := r.db.UpdateOption(ctx, opt); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return db.Option{}, apperr.Conflict("option name '%s' must be unique within field '%s'", opt.Name, opt.FieldID)
		}
		return db.Option{}, db.NotFoundAs(err, "option", id)
	}
	return opt, nil
}

func (r *Registry) DeleteOption(ctx context.Context, id string) error {
	if err := r.db.DeleteOption(ctx, id); err != nil {
		return db.NotFoundAs(err, "option", id)
	}
	return nil
}

func (r *Registry) ListOptions(ctx context.Context, fieldID string) ([]db.Option, error) {
	if _, err := r.db.GetField(ctx, fieldID); err != nil {
		return nil, db.NotFoundAs(err, "field", fieldID)
	}
	return r.db.ListOptions(ctx, fieldID)
}
