package cu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMeter_Consume(t *testing.T) {
	cm := NewComputeMeter(1000)

	assert.NoError(t, cm.Consume(150))
	assert.Equal(t, uint64(150), cm.Used())
	assert.Equal(t, uint64(850), cm.Remaining())
	assert.False(t, cm.Exceeded())

	assert.ErrorIs(t, cm.Consume(851), ErrComputeExceeded)
	assert.True(t, cm.Exceeded())
	assert.Equal(t, uint64(0), cm.Remaining())
	assert.Equal(t, uint64(1000), cm.Used())
}
