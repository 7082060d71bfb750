package limits

import "sync/atomic"

type Sysatomic_t int64

// Syslimit_t holds system-wide resource limits.
type Syslimit_t struct {
	// live tasks, zombies included
	Sysprocs Sysatomic_t
	// per-task descriptor table size
	Nofile int
	// per-address-space mapping count
	Vmas int
	// live pipes
	Pipes Sysatomic_t
}

func MkSysLimit(procs, nofile, vmas int) *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: Sysatomic_t(procs),
		Nofile:   nofile,
		Vmas:     vmas,
		Pipes:    1e4,
	}
}

// Defaults are used when no configuration is given.
func MkDefault() *Syslimit_t {
	return MkSysLimit(1e4, 1024, 4096)
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(s)
}

func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

// returns false if the limit has been reached.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

func (s *Sysatomic_t) Give() {
	s.Given(1)
}

func (s *Sysatomic_t) Left() int {
	return int(atomic.LoadInt64(s._aptr()))
}
