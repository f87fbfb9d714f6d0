package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:generate mockgen -destination=mocks/mock_pool.go -package=mocks github.com/nrjais/basestore/internal/db PostgresPool
//go:generate mockgen -destination=mocks/mock_pgx.go -package=mocks github.com/jackc/pgx/v5 Row,Rows

// PostgresPool is the subset of pgxpool.Pool and pgx.Tx used by the queries.
type PostgresPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SchemaRepository stores bases, fields and select options.
type SchemaRepository interface {
	InsertBase(ctx context.Context, base Base) error
	GetBase(ctx context.Context, id string) (Base, error)
	ListBases(ctx context.Context) ([]Base, error)
	DeleteBase(ctx context.Context, id string) error

	InsertFields(ctx context.Context, fields []Field) error
	GetField(ctx context.Context, id string) (Field, error)
	ListFields(ctx context.Context, baseID string) ([]Field, error)
	DeleteField(ctx context.Context, id string) error

	InsertOption(ctx context.Context, opt Option) error
	GetOption(ctx context.Context, id string) (Option, error)
	ListOptions(ctx context.Context, fieldID string) ([]Option, error)
	// FindOption matches key against option ids first, then names, within one field.
	FindOption(ctx context.Context, fieldID, key string) (Option, error)
	UpdateOption(ctx context.Context, opt Option) error
	DeleteOption(ctx context.Context, id string) error
}

// RecordRepository stores records and their attribute values.
type RecordRepository interface {
	InsertRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, id string) (Record, error)
	DeleteRecord(ctx context.Context, id string) error
	CountRecords(ctx context.Context, baseID string) (int, error)

	FindRecords(ctx context.Context, q RecordQuery) ([]Record, error)
	CountMatching(ctx context.Context, q RecordQuery) (int, error)

	// ListRecordValues returns values joined with their fields, grouped by record
	// and ordered by field creation within a record.
	ListRecordValues(ctx context.Context, recordIDs []string) ([]FieldValue, error)
	InsertValues(ctx context.Context, values []Value) error
	// UpsertValue writes the unique (record, field) slot and returns the stored row.
	UpsertValue(ctx context.Context, v Value) (Value, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (User, error)
}

type Queries interface {
	SchemaRepository
	RecordRepository
	UserRepository
}

// Database aggregates all queries and runs groups of them atomically.
type Database interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	Close()
}

// LoadRecord fetches one record together with its joined values.
func LoadRecord(ctx context.Context, q Queries, id string) (RecordWithValues, error) {
	rec, err := q.GetRecord(ctx, id)
	if err != nil {
		return RecordWithValues{}, err
	}
	values, err := q.ListRecordValues(ctx, []string{id})
	if err != nil {
		return RecordWithValues{}, err
	}
	return RecordWithValues{Record: rec, Values: values}, nil
}

// AttachValues groups joined values onto their records, preserving record order.
func AttachValues(records []Record, values []FieldValue) []RecordWithValues {
	byRecord := make(map[string][]FieldValue, len(records))
	for _, v := range values {
		byRecord[v.Value.RecordID] = append(byRecord[v.Value.RecordID], v)
	}
	out := make([]RecordWithValues, 0, len(records))
	for _, r := range records {
		out = append(out, RecordWithValues{Record: r, Values: byRecord[r.ID]})
	}
	return out
}
