package ustr

import "bytes"

// Ustr is a path or string copied in from user memory.
type Ustr []uint8

func (us Ustr) Isdot() bool {
	return len(us) == 1 && us[0] == '.'
}

func (us Ustr) Isdotdot() bool {
	return len(us) == 2 && us[0] == '.' && us[1] == '.'
}

func (us Ustr) Eq(s Ustr) bool {
	return bytes.Equal(us, s)
}

func MkUstr() Ustr {
	return Ustr{}
}

func MkUstrRoot() Ustr {
	return Ustr("/")
}

// MkUstrSlice stops at the first NUL.
func MkUstrSlice(buf []uint8) Ustr {
	if i := bytes.IndexByte(buf, 0); i != -1 {
		return buf[:i]
	}
	return buf
}

func (us Ustr) Extend(p Ustr) Ustr {
	tmp := make(Ustr, len(us), len(us)+1+len(p))
	copy(tmp, us)
	if len(tmp) == 0 || tmp[len(tmp)-1] != '/' {
		tmp = append(tmp, '/')
	}
	return append(tmp, p...)
}

func (us Ustr) ExtendStr(p string) Ustr {
	return us.Extend(Ustr(p))
}

func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

func (us Ustr) IndexByte(b uint8) int {
	return bytes.IndexByte(us, b)
}

func (us Ustr) String() string {
	return string(us)
}
