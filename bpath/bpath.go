package bpath

import "github.com/chaoskernel/chaos/ustr"

// allocation-less pathparts
type Pathparts_t struct {
	path ustr.Ustr
	loc  int
}

func (pp *Pathparts_t) Pp_init(path ustr.Ustr) {
	pp.path = path
	pp.loc = 0
}

func (pp *Pathparts_t) Next() (ustr.Ustr, bool) {
	ret := ustr.MkUstr()
	for len(ret) == 0 {
		if pp.loc == len(pp.path) {
			return ustr.MkUstr(), false
		}
		ret = pp.path[pp.loc:]
		nloc := ret.IndexByte('/')
		if nloc != -1 {
			ret = ret[:nloc]
			pp.loc += nloc + 1
		} else {
			pp.loc += len(ret)
		}
	}
	return ret, true
}

// Sdirname splits path into its directory and final component. Trailing
// slashes are ignored.
func Sdirname(path ustr.Ustr) (ustr.Ustr, ustr.Ustr) {
	fn := path
	for len(fn) > 1 && fn[len(fn)-1] == '/' {
		fn = fn[:len(fn)-1]
	}
	var s ustr.Ustr
	for i := len(fn) - 1; i >= 0; i-- {
		if fn[i] == '/' {
			// keep the slash when it is the root
			if i == 0 {
				s = fn[0:1]
			} else {
				s = fn[:i]
			}
			fn = fn[i+1:]
			break
		}
	}
	return s, fn
}

// Canonicalize removes empty, "." and ".." components from an absolute
// path. ".." at the root stays at the root.
func Canonicalize(path ustr.Ustr) ustr.Ustr {
	if !path.IsAbsolute() {
		panic("relative path")
	}
	var parts []ustr.Ustr
	var pp Pathparts_t
	pp.Pp_init(path)
	for {
		c, ok := pp.Next()
		if !ok {
			break
		}
		switch {
		case c.Isdot():
		case c.Isdotdot():
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, c)
		}
	}
	ret := ustr.MkUstrRoot()
	for _, c := range parts {
		ret = ret.Extend(c)
	}
	return ret
}

// Join resolves path against the directory cwd.
func Join(cwd, path ustr.Ustr) ustr.Ustr {
	if path.IsAbsolute() {
		return Canonicalize(path)
	}
	return Canonicalize(cwd.Extend(path))
}
