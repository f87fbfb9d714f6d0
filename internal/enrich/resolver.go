package enrich

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/metrics"
	"github.com/nrjais/basestore/internal/shape"
)

// Record is a record whose reference-typed values have been resolved.
type Record struct {
	db.Record
	Values []Value
	// Resolved is false when the depth cap was reached and values are raw.
	Resolved bool
}

// Value holds a decoded value for one field. Depending on the field type the
// value is the raw decoded JSON, *db.User, *db.Option, *Record, a string kept
// from an unmatched select, nil for a missing reference, or a []any of those.
type Value struct {
	Field db.Field
	Value any
}

// Resolver expands links, users and select options. Links to other records
// recurse one level deeper; resolution stops once the depth exceeds maxDepth.
type Resolver struct {
	db       db.Queries
	maxDepth int
}

func NewResolver(database db.Queries, maxDepth int) *Resolver {
	return &Resolver{db: database, maxDepth: maxDepth}
}

// EnrichAll enriches a page of records concurrently, preserving order.
func (r *Resolver) EnrichAll(ctx context.Context, records []db.RecordWithValues) ([]*Record, error) {
	out := make([]*Record, len(records))
	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			enriched, err := r.Enrich(gctx, rec, 0)
			if err != nil {
				return err
			}
			out[i] = enriched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Enrich resolves every reference-typed value of rec at the given depth.
func (r *Resolver) Enrich(ctx context.Context, rec db.RecordWithValues, depth int) (*Record, error) {
	out := &Record{Record: rec.Record, Values: make([]Value, len(rec.Values)), Resolved: depth <= r.maxDepth}
	for i, fv := range rec.Values {
		decoded, err := shape.Decode(fv.Value.Value)
		if err != nil {
			return nil, err
		}
		out.Values[i] = Value{Field: fv.Field, Value: decoded}
	}
	if !out.Resolved {
		metrics.EnrichmentDepthCutoffs.Inc()
		slog.Debug("Enrichment depth cap reached", "record_id", rec.ID, "depth", depth)
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range out.Values {
		v := &out.Values[i]
		resolve := r.resolverFor(v.Field, depth)
		if resolve == nil || v.Value == nil {
			continue
		}

		if v.Field.Type.IsMulti() {
			items, ok := v.Value.([]any)
			if !ok {
				continue
			}
			resolved := make([]any, len(items))
			v.Value = resolved
			for j, item := range items {
				j, item := j, item
				g.Go(func() error {
					res, err := resolveItem(gctx, resolve, item)
					resolved[j] = res
					return err
				})
			}
			continue
		}

		raw := v.Value
		g.Go(func() error {
			res, err := resolveItem(gctx, resolve, raw)
			v.Value = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type resolveFunc func(ctx context.Context, key string) (any, error)

// resolveItem applies resolve to string references and passes anything else through.
func resolveItem(ctx context.Context, resolve resolveFunc, item any) (any, error) {
	key, ok := item.(string)
	if !ok {
		return item, nil
	}
	return resolve(ctx, key)
}

func (r *Resolver) resolverFor(field db.Field, depth int) resolveFunc {
	switch {
	case field.Type.IsUser():
		return r.user
	case field.Type.IsSelect():
		return func(ctx context.Context, key string) (any, error) {
			return r.option(ctx, field.ID, key)
		}
	case field.Type.IsLink():
		return func(ctx context.Context, key string) (any, error) {
			return r.link(ctx, key, depth+1)
		}
	}
	return nil
}

func (r *Resolver) user(ctx context.Context, id string) (any, error) {
	metrics.EnrichmentLookups.WithLabelValues("user").Inc()
	u, err := r.db.GetUser(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lo.ToPtr(u), nil
}

// option matches key by option id, then by name. An unmatched key is kept as
// the raw string.
func (r *Resolver) option(ctx context.Context, fieldID, key string) (any, error) {
	metrics.EnrichmentLookups.WithLabelValues("option").Inc()
	opt, err := r.db.FindOption(ctx, fieldID, key)
	if errors.Is(err, db.ErrNotFound) {
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	return lo.ToPtr(opt), nil
}

func (r *Resolver) link(ctx context.Context, id string, depth int) (any, error) {
	metrics.EnrichmentLookups.WithLabelValues("record").Inc()
	target, err := db.LoadRecord(ctx, r.db, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	enriched, err := r.Enrich(ctx, target, depth)
	if err != nil {
		return nil, err
	}
	return enriched, nil
}
