package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/enrich"
	"github.com/nrjais/basestore/internal/format"
	"github.com/nrjais/basestore/internal/metrics"
	"github.com/nrjais/basestore/internal/query"
	"github.com/nrjais/basestore/internal/registry"
	"github.com/nrjais/basestore/internal/schemacache"
	"github.com/nrjais/basestore/internal/shape"
	"github.com/nrjais/basestore/internal/valuestore"
)

// Service is the operation surface consumed by transports. Records come back
// already enriched and formatted; schema entities are returned as stored.
type Service struct {
	registry *registry.Registry
	values   *valuestore.Store
	query    *query.Engine
	resolver *enrich.Resolver
	db       db.Database
	validate *validator.Validate
}

func NewService(database db.Database, cache *schemacache.Manager, cfg *config.Config) *Service {
	return &Service{
		registry: registry.New(database, cache),
		values:   valuestore.New(database),
		query:    query.NewEngine(database, cache, cfg),
		resolver: enrich.NewResolver(database, cfg.EnrichOptions.MaxDepth),
		db:       database,
		validate: validator.New(),
	}
}

type CreateBaseRequest struct {
	Name  string `validate:"required,max=255"`
	Actor string `validate:"required"`
}

type DeleteBaseRequest struct {
	ID    string `validate:"required"`
	Actor string `validate:"required"`
}

type CreateFieldRequest struct {
	BaseID string          `validate:"required"`
	Name   string          `validate:"required,max=255"`
	Type   shape.FieldType `validate:"required"`
	Config json.RawMessage
	Actor  string `validate:"required"`
}

type CreateOptionRequest struct {
	FieldID string `validate:"required"`
	Name    string `validate:"required,max=255"`
	Color   *string
}

type UpdateOptionRequest struct {
	ID    string  `validate:"required"`
	Name  *string `validate:"omitempty,min=1,max=255"`
	Color *string
}

type CreateRecordRequest struct {
	BaseID string `validate:"required"`
	Name   string `validate:"max=255"`
	Actor  string `validate:"required"`
}

type ListRecordsRequest struct {
	BaseID string `validate:"required"`
	Filter map[string]any
	Sort   string `validate:"omitempty,oneof=asc desc"`
	Page   *int
	Limit  *int
	Actor  string
}

type UpsertValueRequest struct {
	RecordID string `validate:"required"`
	FieldID  string `validate:"required"`
	Value    any
	Actor    string `validate:"required"`
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
			}
			return apperr.BadRequest("invalid request: %s", strings.Join(msgs, ", "))
		}
		return apperr.BadRequest("invalid request: %v", err)
	}
	return nil
}

func requireID(name, id string) error {
	if id == "" {
		return apperr.BadRequest("%s is required", name)
	}
	return nil
}

// observe records the outcome of one operation. It is deferred with a pointer
// to the named error result.
func observe(op string, start time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == string(apperr.KindInternal) {
			slog.Error("Operation failed", "operation", op, "error", err)
		} else {
			slog.Debug("Operation rejected", "operation", op, "kind", outcome, "error", err)
		}
	}
	metrics.Operations.WithLabelValues(op, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Service) CreateBase(ctx context.Context, req CreateBaseRequest) (_ registry.BaseSchema, err error) {
	defer observe("create_base", time.Now(), &err)
	if err = s.check(req); err != nil {
		return registry.BaseSchema{}, err
	}
	return s.registry.CreateBase(ctx, req.Name, req.Actor)
}

func (s *Service) GetBase(ctx context.Context, id string) (_ registry.BaseSchema, err error) {
	defer observe("get_base", time.Now(), &err)
	if err = requireID("base id", id); err != nil {
		return registry.BaseSchema{}, err
	}
	return s.registry.GetBase(ctx, id)
}

func (s *Service) ListBases(ctx context.Context) (_ []db.Base, err error) {
	defer observe("list_bases", time.Now(), &err)
	return s.registry.ListBases(ctx)
}

func (s *Service) DeleteBase(ctx context.Context, req DeleteBaseRequest) (err error) {
	defer observe("delete_base", time.Now(), &err)
	if err = s.check(req); err != nil {
		return err
	}
	return s.registry.DeleteBase(ctx, req.ID, req.Actor)
}

func (s *Service) CreateField(ctx context.Context, req CreateFieldRequest) (_ db.Field, err error) {
	defer observe("create_field", time.Now(), &err)
	if err = s.check(req); err != nil {
		return db.Field{}, err
	}
	return s.registry.CreateField(ctx, req.BaseID, req.Name, req.Type, req.Config, req.Actor)
}

func (s *Service) DeleteField(ctx context.Context, id string) (err error) {
	defer observe("delete_field", time.Now(), &err)
	if err = requireID("field id", id); err != nil {
		return err
	}
	return s.registry.DeleteField(ctx, id)
}

func (s *Service) CreateOption(ctx context.Context, req CreateOptionRequest) (_ db.Option, err error) {
	defer observe("create_option", time.Now(), &err)
	if err = s.check(req); err != nil {
		return db.Option{}, err
	}
	return s.registry.CreateOption(ctx, req.FieldID, req.Name, req.Color)
}

func (s *Service) UpdateOption(ctx context.Context, req UpdateOptionRequest) (_ db.Option, err error) {
	defer observe("update_option", time.Now(), &err)
	if err = s.check(req); err != nil {
		return db.Option{}, err
	}
	return s.registry.UpdateOption(ctx, req.ID, req.Name, req.Color)
}

func (s *Service) DeleteOption(ctx context.Context, id string) (err error) {
	defer observe("delete_option", time.Now(), &err)
	if err = requireID("option id", id); err != nil {
		return err
	}
	return s.registry.DeleteOption(ctx, id)
}

func (s *Service) ListOptions(ctx context.Context, fieldID string) (_ []db.Option, err error) {
	defer observe("list_options", time.Now(), &err)
	if err = requireID("field id", fieldID); err != nil {
		return nil, err
	}
	return s.registry.ListOptions(ctx, fieldID)
}

// CreateRecord creates a record with its system values and returns it enriched.
func (s *Service) CreateRecord(ctx context.Context, req CreateRecordRequest) (_ map[string]any, err error) {
	defer observe("create_record", time.Now(), &err)
	if err = s.check(req); err != nil {
		return nil, err
	}
	rec, err := s.values.CreateRecord(ctx, req.BaseID, req.Name, req.Actor)
	if err != nil {
		return nil, err
	}
	enriched, err := s.resolver.Enrich(ctx, rec, 0)
	if err != nil {
		return nil, err
	}
	return format.Record(enriched), nil
}

func (s *Service) GetRecord(ctx context.Context, id string) (_ map[string]any, err error) {
	defer observe("get_record", time.Now(), &err)
	if err = requireID("record id", id); err != nil {
		return nil, err
	}
	rec, err := db.LoadRecord(ctx, s.db, id)
	if err != nil {
		return nil, db.NotFoundAs(err, "record", id)
	}
	enriched, err := s.resolver.Enrich(ctx, rec, 0)
	if err != nil {
		return nil, err
	}
	return format.Record(enriched), nil
}

// ListRecords returns {data, meta:{total, page, limit, totalPages}}.
func (s *Service) ListRecords(ctx context.Context, req ListRecordsRequest) (_ map[string]any, err error) {
	defer observe("list_records", time.Now(), &err)
	req.Sort = strings.ToLower(req.Sort)
	if err = s.check(req); err != nil {
		return nil, err
	}
	res, err := s.query.List(ctx, query.Params{
		BaseID: req.BaseID,
		Filter: req.Filter,
		Sort:   db.SortOrder(req.Sort),
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, err
	}
	enriched, err := s.resolver.EnrichAll(ctx, res.Records)
	if err != nil {
		return nil, err
	}
	slog.Debug("Listing served", "base_id", req.BaseID, "actor", req.Actor, "returned", len(enriched), "total", res.Total)
	return format.Page(enriched, res.Total, res.Page, res.Limit, res.TotalPages), nil
}

func (s *Service) DeleteRecord(ctx context.Context, id string) (err error) {
	defer observe("delete_record", time.Now(), &err)
	if err = requireID("record id", id); err != nil {
		return err
	}
	return s.values.DeleteRecord(ctx, id)
}

func (s *Service) UpsertValue(ctx context.Context, req UpsertValueRequest) (_ db.Value, err error) {
	defer observe("upsert_value", time.Now(), &err)
	if err = s.check(req); err != nil {
		return db.Value{}, err
	}
	return s.values.UpsertValue(ctx, req.RecordID, req.FieldID, req.Value, req.Actor)
}

// ParseFilter decodes a textual filter such as {"Name":"John"}. Empty or
// unparsable input means no filter.
func ParseFilter(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var filter map[string]any
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		slog.Warn("Ignoring unparsable filter", "filter", raw, "error", err)
		return nil
	}
	return filter
}
