// Package format projects stored and enriched entities into the external
// JSON-shaped representation. Every result is built from map[string]any,
// []any and scalars only, so it can be handed to structpb or encoding/json as is.
package format

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/enrich"
	"github.com/nrjais/basestore/internal/registry"
	"github.com/nrjais/basestore/internal/shape"
)

// Timestamp renders t in UTC with nanosecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Record projects an enriched record into
// {id, baseId, createdAt, values: {fieldId: {fieldId, fieldType, value}}}.
func Record(r *enrich.Record) map[string]any {
	values := lo.SliceToMap(r.Values, func(v enrich.Value) (string, any) {
		return v.Field.ID, map[string]any{
			"fieldId":   v.Field.ID,
			"fieldType": string(v.Field.Type),
			"value":     project(v.Value),
		}
	})
	return map[string]any{
		"id":        r.ID,
		"baseId":    r.BaseID,
		"createdAt": Timestamp(r.CreatedAt),
		"values":    values,
	}
}

func Records(rs []*enrich.Record) []any {
	return lo.Map(rs, func(r *enrich.Record, _ int) any { return Record(r) })
}

// Page wraps a listing with its pagination metadata.
func Page(rs []*enrich.Record, total, page, limit, totalPages int) map[string]any {
	return map[string]any{
		"data": Records(rs),
		"meta": map[string]any{
			"total":      total,
			"page":       page,
			"limit":      limit,
			"totalPages": totalPages,
		},
	}
}

func project(v any) any {
	switch t := v.(type) {
	case *enrich.Record:
		if t == nil {
			return nil
		}
		return Record(t)
	case *db.User:
		if t == nil {
			return nil
		}
		return User(*t)
	case *db.Option:
		if t == nil {
			return nil
		}
		return Option(*t)
	case []any:
		return lo.Map(t, func(item any, _ int) any { return project(item) })
	default:
		return v
	}
}

// User is the public projection of an account.
func User(u db.User) map[string]any {
	var position any
	if u.Position != nil {
		position = map[string]any{"id": u.Position.ID, "name": u.Position.Name}
	}
	var age any
	if u.Age != nil {
		age = *u.Age
	}
	return map[string]any{
		"id":         u.ID,
		"firstName":  deref(u.FirstName),
		"lastName":   deref(u.LastName),
		"middleName": deref(u.MiddleName),
		"age":        age,
		"position":   position,
	}
}

func Option(o db.Option) map[string]any {
	return map[string]any{
		"id":      o.ID,
		"fieldId": o.FieldID,
		"name":    o.Name,
		"color":   deref(o.Color),
	}
}

func Options(opts []db.Option) []any {
	return lo.Map(opts, func(o db.Option, _ int) any { return Option(o) })
}

func Base(b db.Base) map[string]any {
	return map[string]any{
		"id":        b.ID,
		"name":      b.Name,
		"createdBy": b.CreatedBy,
		"createdAt": Timestamp(b.CreatedAt),
	}
}

func Bases(bs []db.Base) []any {
	return lo.Map(bs, func(b db.Base, _ int) any { return Base(b) })
}

// BaseSchema is a base with its fields listed under "fields".
func BaseSchema(s registry.BaseSchema) map[string]any {
	out := Base(s.Base)
	out["fields"] = lo.Map(s.Fields, func(f db.Field, _ int) any { return Field(f) })
	return out
}

func Field(f db.Field) map[string]any {
	return map[string]any{
		"id":        f.ID,
		"baseId":    f.BaseID,
		"name":      f.Name,
		"type":      string(f.Type),
		"config":    decodeOr(f.Config, map[string]any{}),
		"createdAt": Timestamp(f.CreatedAt),
	}
}

func Value(v db.Value) map[string]any {
	return map[string]any{
		"id":        v.ID,
		"recordId":  v.RecordID,
		"fieldId":   v.FieldID,
		"value":     decodeOr(v.Value, nil),
		"createdBy": v.CreatedBy,
		"updatedBy": v.UpdatedBy,
		"createdAt": Timestamp(v.CreatedAt),
		"updatedAt": Timestamp(v.UpdatedAt),
	}
}

// decodeOr decodes stored JSON, falling back when it is empty or unreadable.
func decodeOr(raw json.RawMessage, fallback any) any {
	v, err := shape.Decode(raw)
	if err != nil || v == nil {
		return fallback
	}
	return v
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
