package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstructors(t *testing.T) {
	assert.True(t, Confirmed().Terminal())
	assert.True(t, Expired().Terminal())
	assert.False(t, Pending(4).Terminal())

	m := Missing(Window)
	assert.True(t, m.NeedsProfileCreation)
	assert.False(t, m.Terminal())
	left, ok := m.Remaining()
	assert.True(t, ok)
	assert.Equal(t, 10*time.Minute, left)

	_, ok = Confirmed().Remaining()
	assert.False(t, ok)
}
