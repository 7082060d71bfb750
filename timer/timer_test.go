package timer

import "testing"
import "time"

import "github.com/stretchr/testify/assert"

func TestFakeclock(t *testing.T) {
	fc := MkFakeclock(1e9)
	assert.Equal(t, int64(0), fc.Now())
	fc.Advance(100 * time.Millisecond)
	assert.Equal(t, int64(100e6), fc.Now())
	assert.Equal(t, int64(1e9+100e6), fc.Wall())
	assert.Panics(t, func() { fc.Advance(-1) })
}

func TestRealclock(t *testing.T) {
	rc := MkRealclock()
	a := rc.Now()
	b := rc.Now()
	assert.True(t, b >= a)
	assert.True(t, rc.Wall() > 0)
}

func TestTimespec(t *testing.T) {
	s, ns := Timespec(2500000001)
	assert.Equal(t, 2, s)
	assert.Equal(t, 500000001, ns)
}
