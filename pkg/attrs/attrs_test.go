package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	list := []any{"identity_id", "id-1", "reaped", true, 42, "ignored", "source"}

	assert.Equal(t, "id-1", ExtractString(list, "identity_id"))
	assert.Empty(t, ExtractString(list, "reaped"), "non-string values are skipped")
	assert.Empty(t, ExtractString(list, "source"), "a trailing key without value is skipped")
	assert.Empty(t, ExtractString(nil, "identity_id"))
}

func TestFirstString(t *testing.T) {
	list := []any{"reason", "", "error", "timeout"}
	assert.Equal(t, "timeout", FirstString(list, "reason", "error"))
	assert.Empty(t, FirstString(list, "missing"))
}
