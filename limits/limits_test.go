package limits

import "testing"

import "github.com/stretchr/testify/assert"

func TestTakeGive(t *testing.T) {
	l := MkSysLimit(2, 8, 8)
	assert.True(t, l.Sysprocs.Take())
	assert.True(t, l.Sysprocs.Take())
	assert.False(t, l.Sysprocs.Take())
	assert.Equal(t, 0, l.Sysprocs.Left())
	l.Sysprocs.Give()
	assert.Equal(t, 1, l.Sysprocs.Left())
	assert.True(t, l.Sysprocs.Take())
}
