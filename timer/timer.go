package timer

import "sync"
import "time"

// Clock_i is the kernel's source of time. Now is monotonic nanoseconds
// since boot; Wall is nanoseconds since the Unix epoch.
type Clock_i interface {
	Now() int64
	Wall() int64
}

type Realclock_t struct {
	boot time.Time
}

func MkRealclock() *Realclock_t {
	return &Realclock_t{boot: time.Now()}
}

func (rc *Realclock_t) Now() int64 {
	return int64(time.Since(rc.boot))
}

func (rc *Realclock_t) Wall() int64 {
	return time.Now().UnixNano()
}

// Fakeclock_t only moves when told to.
type Fakeclock_t struct {
	sync.Mutex
	now   int64
	epoch int64
}

func MkFakeclock(epoch int64) *Fakeclock_t {
	return &Fakeclock_t{epoch: epoch}
}

func (fc *Fakeclock_t) Now() int64 {
	fc.Lock()
	defer fc.Unlock()
	return fc.now
}

func (fc *Fakeclock_t) Wall() int64 {
	fc.Lock()
	defer fc.Unlock()
	return fc.epoch + fc.now
}

func (fc *Fakeclock_t) Advance(d time.Duration) int64 {
	if d < 0 {
		panic("time goes forward")
	}
	fc.Lock()
	defer fc.Unlock()
	fc.now += int64(d)
	return fc.now
}

// Timespec splits nanoseconds into seconds and the remainder.
func Timespec(ns int64) (int, int) {
	return int(ns / 1e9), int(ns % 1e9)
}
