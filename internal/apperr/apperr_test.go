package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"nil", nil, ""},
		{"not found", NotFound("record", "r1"), KindNotFound},
		{"conflict", Conflict("option '%s' exists", "Open"), KindConflict},
		{"validation", Validation("value must be a number"), KindValidation},
		{"unsupported type", fmt.Errorf("field f1: %w", ErrUnsupportedType), KindValidation},
		{"bad request", BadRequest("field '%s' not found", "Status"), KindBadRequest},
		{"internal", Internal("system field missing"), KindInternal},
		{"plain error", errors.New("connection reset"), KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("field", "abc")
	assert.Equal(t, "field 'abc' not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}
