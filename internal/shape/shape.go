package shape

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/nrjais/basestore/internal/apperr"
)

type FieldType string

const (
	Name           FieldType = "NAME"
	SingleLineText FieldType = "SINGLE_LINE_TEXT"
	LongText       FieldType = "LONG_TEXT"
	Number         FieldType = "NUMBER"
	Checkbox       FieldType = "CHECKBOX"
	SingleSelect   FieldType = "SINGLE_SELECT"
	MultiSelect    FieldType = "MULTI_SELECT"
	SingleUser     FieldType = "SINGLE_USER"
	MultiUser      FieldType = "MULTI_USER"
	SingleLink     FieldType = "SINGLE_LINK"
	MultiLink      FieldType = "MULTI_LINK"
	Author         FieldType = "AUTHOR"
	CreatedBy      FieldType = "CREATED_BY"
	CreatedAt      FieldType = "CREATED_AT"
)

// MaxLineLength bounds NAME and SINGLE_LINE_TEXT values, in characters.
const MaxLineLength = 255

// Catalog lists every field type in declaration order.
var Catalog = []FieldType{
	Name, SingleLineText, LongText, Number, Checkbox,
	SingleSelect, MultiSelect, SingleUser, MultiUser,
	SingleLink, MultiLink, Author, CreatedBy, CreatedAt,
}

// SystemTypes are populated by the core when a record is created. Every base
// carries exactly one field of each.
var SystemTypes = []FieldType{Name, CreatedBy, CreatedAt}

func (t FieldType) Valid() bool {
	for _, c := range Catalog {
		if c == t {
			return true
		}
	}
	return false
}

func (t FieldType) IsSystem() bool {
	return t == Name || t == CreatedBy || t == CreatedAt
}

func (t FieldType) IsSelect() bool {
	return t == SingleSelect || t == MultiSelect
}

func (t FieldType) IsUser() bool {
	return t == SingleUser || t == MultiUser || t == Author || t == CreatedBy
}

func (t FieldType) IsLink() bool {
	return t == SingleLink || t == MultiLink
}

// IsMulti reports whether values of this type are arrays.
func (t FieldType) IsMulti() bool {
	return t == MultiSelect || t == MultiUser || t == MultiLink
}

type checker func(value any) error

var shapes = map[FieldType]checker{
	Number:         isNumber,
	Name:           isLine,
	SingleLineText: isLine,
	LongText:       isString("a string"),
	Checkbox:       isBool,
	SingleSelect:   isString("a string (option ID or name)"),
	MultiSelect:    isStringArray("an array of strings (option IDs or names)"),
	SingleUser:     isString("a string (user ID)"),
	MultiUser:      isStringArray("an array of strings (user IDs)"),
	SingleLink:     isString("a string (record ID)"),
	MultiLink:      isStringArray("an array of strings (record IDs)"),
}

// Validate checks that value has the shape required by fieldType. A nil value
// is accepted for every type. Types without a writable shape are rejected with
// apperr.ErrUnsupportedType.
func Validate(value any, fieldType FieldType) error {
	if value == nil {
		return nil
	}
	check, ok := shapes[fieldType]
	if !ok {
		return fmt.Errorf("type '%s': %w", fieldType, apperr.ErrUnsupportedType)
	}
	return check(value)
}

// Decode unmarshals a stored JSON value into its generic Go form.
func Decode(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode stored value: %w", err)
	}
	return v, nil
}

func isNumber(value any) error {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return nil
	}
	return apperr.Validation("value must be a number")
}

func isBool(value any) error {
	if _, ok := value.(bool); !ok {
		return apperr.Validation("value must be a boolean")
	}
	return nil
}

func isLine(value any) error {
	s, ok := value.(string)
	if !ok {
		return apperr.Validation("value must be a string")
	}
	if utf8.RuneCountInString(s) > MaxLineLength {
		return apperr.Validation("single line text must be <= %d characters", MaxLineLength)
	}
	return nil
}

func isString(want string) checker {
	return func(value any) error {
		if _, ok := value.(string); !ok {
			return apperr.Validation("value must be %s", want)
		}
		return nil
	}
}

func isStringArray(want string) checker {
	return func(value any) error {
		switch arr := value.(type) {
		case []string:
			return nil
		case []any:
			for _, v := range arr {
				if _, ok := v.(string); !ok {
					return apperr.Validation("value must be %s", want)
				}
			}
			return nil
		}
		return apperr.Validation("value must be %s", want)
	}
}
