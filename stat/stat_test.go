package stat

import "encoding/binary"
import "testing"

import "github.com/stretchr/testify/assert"

func TestBytes(t *testing.T) {
	var st Stat_t
	st.Wdev(1)
	st.Wino(42)
	st.Wmode(S_IFREG | 0644)
	st.Wnlink(1)
	st.Wsize(1000)
	st.Wmtime(7, 9)
	b := st.Bytes()
	le := binary.LittleEndian
	assert.Len(t, b, STATSZ)
	assert.Equal(t, uint64(42), le.Uint64(b[8:]))
	assert.Equal(t, uint32(S_IFREG|0644), le.Uint32(b[16:]))
	assert.Equal(t, uint64(1000), le.Uint64(b[48:]))
	assert.Equal(t, uint64(2), le.Uint64(b[64:]))
	assert.Equal(t, uint64(7), le.Uint64(b[88:]))
	assert.False(t, st.Isdir())
	st.Wmode(S_IFDIR | 0755)
	assert.True(t, st.Isdir())
}
