package fd

import "testing"

import "github.com/stretchr/testify/assert"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/ustr"

func TestCwd(t *testing.T) {
	c := MkRootCwd()
	assert.Equal(t, "/a/b", c.Canonicalpath(ustr.Ustr("a/./b")).String())
	c.Set(ustr.Ustr("/usr"))
	n := c.Copy()
	c.Set(ustr.Ustr("/tmp"))
	assert.Equal(t, "/usr/bin", n.Canonicalpath(ustr.Ustr("bin")).String())
	assert.Equal(t, "/tmp", c.Get().String())
}

func TestMkperms(t *testing.T) {
	assert.Equal(t, FD_READ, Mkperms(defs.O_RDONLY))
	assert.Equal(t, FD_WRITE|FD_CLOEXEC, Mkperms(defs.O_WRONLY|defs.O_CLOEXEC))
	assert.Equal(t, FD_READ|FD_WRITE, Mkperms(defs.O_RDWR|defs.O_CREAT))
}
