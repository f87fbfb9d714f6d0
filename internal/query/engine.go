package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/nrjais/basestore/internal/apperr"
	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/metrics"
	"github.com/nrjais/basestore/internal/schemacache"
)

// Params selects one page of records in a base. Nil Page and Limit fall back to
// the configured defaults; an empty Sort means newest first.
type Params struct {
	BaseID string
	Filter map[string]any
	Sort   db.SortOrder
	Page   *int
	Limit  *int
}

type Result struct {
	Records    []db.RecordWithValues
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// Engine resolves name-keyed filters against a base's schema and reads the
// matching page from the store.
type Engine struct {
	db           db.Queries
	schema       *schemacache.Manager
	defaultLimit int
	maxLimit     int
}

func NewEngine(database db.Queries, schema *schemacache.Manager, cfg *config.Config) *Engine {
	return &Engine{
		db:           database,
		schema:       schema,
		defaultLimit: cfg.QueryOptions.DefaultLimit,
		maxLimit:     cfg.QueryOptions.MaxLimit,
	}
}

func (e *Engine) window(p Params) (page, limit int, err error) {
	page = lo.FromPtrOr(p.Page, 1)
	limit = lo.FromPtrOr(p.Limit, e.defaultLimit)
	if page < 1 {
		return 0, 0, apperr.BadRequest("page must be >= 1, got %d", page)
	}
	if limit < 1 {
		return 0, 0, apperr.BadRequest("limit must be >= 1, got %d", limit)
	}
	if e.maxLimit > 0 && limit > e.maxLimit {
		limit = e.maxLimit
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, apperr.BadRequest("page %d is out of range for limit %d", page, limit)
	}
	return page, limit, nil
}

func sortOrder(s db.SortOrder) (db.SortOrder, error) {
	switch db.SortOrder(strings.ToLower(string(s))) {
	case "", db.SortDesc:
		return db.SortDesc, nil
	case db.SortAsc:
		return db.SortAsc, nil
	}
	return "", apperr.BadRequest("sort must be 'asc' or 'desc', got '%s'", s)
}

// Filters turns a field-name keyed filter into per-field equality constraints.
// Keys are resolved in sorted order so the first unknown name reported is stable.
func (e *Engine) Filters(ctx context.Context, baseID string, filter map[string]any) ([]db.ValueFilter, error) {
	names := lo.Keys(filter)
	sort.Strings(names)

	out := make([]db.ValueFilter, 0, len(names))
	for _, name := range names {
		field, ok, err := e.schema.FieldByName(ctx, baseID, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.BadRequest("filter field '%s' does not exist in base '%s'", name, baseID)
		}
		raw, err := json.Marshal(filter[name])
		if err != nil {
			return nil, apperr.BadRequest("filter value for '%s' is not valid JSON", name)
		}
		out = append(out, db.ValueFilter{FieldID: field.ID, Value: raw})
	}
	return out, nil
}

// List returns the requested page of matching records with their values
// joined, plus the total match count.
func (e *Engine) List(ctx context.Context, p Params) (Result, error) {
	page, limit, err := e.window(p)
	if err != nil {
		return Result{}, err
	}
	order, err := sortOrder(p.Sort)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.db.GetBase(ctx, p.BaseID); err != nil {
		return Result{}, db.NotFoundAs(err, "base", p.BaseID)
	}
	filters, err := e.Filters(ctx, p.BaseID, p.Filter)
	if err != nil {
		return Result{}, err
	}

	rq := db.RecordQuery{
		BaseID:  p.BaseID,
		Filters: filters,
		Sort:    order,
		Offset:  (page - 1) * limit,
		Limit:   limit,
	}
	total, err := e.db.CountMatching(ctx, rq)
	if err != nil {
		return Result{}, err
	}
	records, err := e.db.FindRecords(ctx, rq)
	if err != nil {
		return Result{}, err
	}

	var joined []db.RecordWithValues
	if len(records) > 0 {
		ids := lo.Map(records, func(r db.Record, _ int) string { return r.ID })
		values, err := e.db.ListRecordValues(ctx, ids)
		if err != nil {
			return Result{}, err
		}
		joined = db.AttachValues(records, values)
	} else {
		joined = []db.RecordWithValues{}
	}

	metrics.ListedRecords.Observe(float64(len(joined)))
	slog.Debug("Records listed", "base_id", p.BaseID, "filters", len(filters), "page", page, "limit", limit, "total", total)

	return Result{
		Records:    joined,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: TotalPages(total, limit),
	}, nil
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
