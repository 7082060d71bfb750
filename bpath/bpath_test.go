package bpath

import "testing"

import "github.com/stretchr/testify/assert"

import "github.com/chaoskernel/chaos/ustr"

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, out string }{
		{"/", "/"},
		{"/a/b/c", "/a/b/c"},
		{"//a///b/", "/a/b"},
		{"/a/./b/../c", "/a/c"},
		{"/../..", "/"},
		{"/a/b/../../..", "/"},
	}
	for _, c := range cases {
		assert.Equal(t, c.out, Canonicalize(ustr.Ustr(c.in)).String(), c.in)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/home/x", Join(ustr.Ustr("/home"), ustr.Ustr("x")).String())
	assert.Equal(t, "/etc", Join(ustr.Ustr("/home"), ustr.Ustr("/etc")).String())
	assert.Equal(t, "/", Join(ustr.Ustr("/home"), ustr.Ustr("..")).String())
}

func TestSdirname(t *testing.T) {
	d, f := Sdirname(ustr.Ustr("/a/b/c"))
	assert.Equal(t, "/a/b", d.String())
	assert.Equal(t, "c", f.String())
	d, f = Sdirname(ustr.Ustr("/a/"))
	assert.Equal(t, "/", d.String())
	assert.Equal(t, "a", f.String())
	d, f = Sdirname(ustr.Ustr("name"))
	assert.Equal(t, "", d.String())
	assert.Equal(t, "name", f.String())
}

func TestPathparts(t *testing.T) {
	var pp Pathparts_t
	pp.Pp_init(ustr.Ustr("//usr//bin/"))
	var got []string
	for {
		c, ok := pp.Next()
		if !ok {
			break
		}
		got = append(got, c.String())
	}
	assert.Equal(t, []string{"usr", "bin"}, got)
}
