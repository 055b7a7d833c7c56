package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("connection refused")

	t.Run("matches outermost code", func(t *testing.T) {
		err := Wrap(base, CodeUnavailable, "profile store unavailable")
		assert.True(t, HasCode(err, CodeUnavailable))
		assert.ErrorIs(t, err, base)
	})

	t.Run("matches nested code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "profile not found")
		err := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "refresh failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(base, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(base))
		assert.Equal(t, "internal error", MessageOf(base))
	})

	t.Run("wrap of nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeConflict:        http.StatusConflict,
		CodeTooManyRequests: http.StatusTooManyRequests,
		CodeExpired:         http.StatusGone,
		CodeInternal:        http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
