package db

import (
	"encoding/json"
	"time"

	"github.com/nrjais/basestore/internal/shape"
)

type Base struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type Field struct {
	ID        string
	BaseID    string
	Name      string
	Type      shape.FieldType
	Config    json.RawMessage
	CreatedAt time.Time
}

type Option struct {
	ID      string
	FieldID string
	Name    string
	Color   *string
}

type Record struct {
	ID        string
	BaseID    string
	CreatedAt time.Time
}

type Value struct {
	ID        string
	RecordID  string
	FieldID   string
	Value     json.RawMessage
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldValue is a stored value joined with the field it belongs to.
type FieldValue struct {
	Value Value
	Field Field
}

type RecordWithValues struct {
	Record
	Values []FieldValue
}

type Position struct {
	ID   string
	Name string
}

// User is the read-only projection of an account. Credentials are never loaded.
type User struct {
	ID         string
	FirstName  *string
	LastName   *string
	MiddleName *string
	Age        *int
	Position   *Position
}

// Timestamp normalizes t to the UTC microsecond precision TIMESTAMPTZ keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ValueFilter requires a record to hold exactly Value for FieldID.
type ValueFilter struct {
	FieldID string
	Value   json.RawMessage
}

type RecordQuery struct {
	BaseID  string
	Filters []ValueFilter
	Sort    SortOrder
	Offset  int
	Limit   int
}
