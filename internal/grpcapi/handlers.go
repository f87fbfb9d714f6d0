package grpcapi

import (
	"context"
	"encoding/json"
	"math"

	"github.com/samber/lo"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/core"
	"github.com/nrjais/basestore/internal/format"
	"github.com/nrjais/basestore/internal/shape"
)

// args is a decoded request struct.
type args map[string]any

func (a args) str(key string) string {
	s, _ := a[key].(string)
	return s
}

// optStr distinguishes an absent or null key from an empty string.
func (a args) optStr(key string) *string {
	s, ok := a[key].(string)
	if !ok {
		return nil
	}
	return lo.ToPtr(s)
}

func (a args) optInt(key string) (*int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil, apperr.BadRequest("'%s' must be an integer", key)
	}
	return lo.ToPtr(int(f)), nil
}

// filter accepts either a JSON object or its textual form. Unparsable text is
// treated as no filter.
func (a args) filter() map[string]any {
	switch f := a["filter"].(type) {
	case map[string]any:
		return f
	case string:
		return core.ParseFilter(f)
	}
	return nil
}

func (a args) rawJSON(key string) (json.RawMessage, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.BadRequest("'%s' is not valid JSON", key)
	}
	return raw, nil
}

func (s *Server) createBase(ctx context.Context, a args) (any, error) {
	schema, err := s.svc.CreateBase(ctx, core.CreateBaseRequest{Name: a.str("name"), Actor: actorFrom(ctx)})
	if err != nil {
		return nil, err
	}
	return format.BaseSchema(schema), nil
}

func (s *Server) getBase(ctx context.Context, a args) (any, error) {
	schema, err := s.svc.GetBase(ctx, a.str("id"))
	if err != nil {
		return nil, err
	}
	return format.BaseSchema(schema), nil
}

func (s *Server) listBases(ctx context.Context, _ args) (any, error) {
	bases, err := s.svc.ListBases(ctx)
	if err != nil {
		return nil, err
	}
	return format.Bases(bases), nil
}

func (s *Server) deleteBase(ctx context.Context, a args) (any, error) {
	return nil, s.svc.DeleteBase(ctx, core.DeleteBaseRequest{ID: a.str("id"), Actor: actorFrom(ctx)})
}

func (s *Server) createField(ctx context.Context, a args) (any, error) {
	config, err := a.rawJSON("config")
	if err != nil {
		return nil, err
	}
	field, err := s.svc.CreateField(ctx, core.CreateFieldRequest{
		BaseID: a.str("baseId"),
		Name:   a.str("name"),
		Type:   shape.FieldType(a.str("type")),
		Config: config,
		Actor:  actorFrom(ctx),
	})
	if err != nil {
		return nil, err
	}
	return format.Field(field), nil
}

func (s *Server) deleteField(ctx context.Context, a args) (any, error) {
	return nil, s.svc.DeleteField(ctx, a.str("id"))
}

func (s *Server) createOption(ctx context.Context, a args) (any, error) {
	opt, err := s.svc.CreateOption(ctx, core.CreateOptionRequest{
		FieldID: a.str("fieldId"),
		Name:    a.str("name"),
		Color:   a.optStr("color"),
	})
	if err != nil {
		return nil, err
	}
	return format.Option(opt), nil
}

func (s *Server) updateOption(ctx context.Context, a args) (any, error) {
	opt, err := s.svc.UpdateOption(ctx, core.UpdateOptionRequest{
		ID:    a.str("id"),
		Name:  a.optStr("name"),
		Color: a.optStr("color"),
	})
	if err != nil {
		return nil, err
	}
	return format.Option(opt), nil
}

func (s *Server) deleteOption(ctx context.Context, a args) (any, error) {
	return nil, s.svc.DeleteOption(ctx, a.str("id"))
}

func (s *Server) listOptions(ctx context.Context, a args) (any, error) {
	opts, err := s.svc.ListOptions(ctx, a.str("fieldId"))
	if err != nil {
		return nil, err
	}
	return format.Options(opts), nil
}

func (s *Server) createRecord(ctx context.Context, a args) (any, error) {
	return s.svc.CreateRecord(ctx, core.CreateRecordRequest{
		BaseID: a.str("baseId"),
		Name:   a.str("name"),
		Actor:  actorFrom(ctx),
	})
}

func (s *Server) getRecord(ctx context.Context, a args) (any, error) {
	return s.svc.GetRecord(ctx, a.str("id"))
}

func (s *Server) listRecords(ctx context.Context, a args) (any, error) {
	page, err := a.optInt("page")
	if err != nil {
		return nil, err
	}
	limit, err := a.optInt("limit")
	if err != nil {
		return nil, err
	}
	return s.svc.ListRecords(ctx, core.ListRecordsRequest{
		BaseID: a.str("baseId"),
		Filter: a.filter(),
		Sort:   a.str("sort"),
		Page:   page,
		Limit:  limit,
		Actor:  actorFrom(ctx),
	})
}

func (s *Server) deleteRecord(ctx context.Context, a args) (any, error) {
	return nil, s.svc.DeleteRecord(ctx, a.str("id"))
}

func (s *Server) upsertValue(ctx context.Context, a args) (any, error) {
	v, err := s.svc.UpsertValue(ctx, core.UpsertValueRequest{
		RecordID: a.str("recordId"),
		FieldID:  a.str("fieldId"),
		Value:    a["value"],
		Actor:    actorFrom(ctx),
	})
	if err != nil {
		return nil, err
	}
	return format.Value(v), nil
}
