package kernel

import "math"

import "github.com/chaoskernel/chaos/accnt"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/timer"
import "github.com/chaoskernel/chaos/util"

// length of each struct utsname field
const UTSLEN = 65

// sys_nanosleep blocks until the requested time passed. the deadline is
// kept in the task across the restart of the call, so a spurious wakeup
// sleeps again for the rest.
func (k *Kernel_t) sys_nanosleep(p *proc.Proc_t, reqn, remn int) (int, bool) {
	now := k.Clock.Now()
	dl := p.Sleepdl
	if dl == 0 {
		secs, nsecs, err := p.Vm.Usertimespec(reqn)
		if err != 0 {
			return int(err), false
		}
		if remn != 0 {
			if err := _uwritable(p, remn, 16); err != 0 {
				return int(err), false
			}
		}
		dl = _deadline(now, secs, nsecs)
	}
	if k.Wq.Sleep(p, dl, now) {
		p.Sleepdl = dl
		return 0, true
	}
	p.Sleepdl = 0
	if remn != 0 {
		// never interrupted, nothing remains
		if err := p.Vm.K2user(make([]uint8, 16), remn); err != 0 {
			return int(err), false
		}
	}
	return 0, false
}

// _deadline returns now plus the interval, saturating at the largest time.
func _deadline(now int64, secs, nsecs int) int64 {
	left := math.MaxInt64 - now - int64(nsecs)
	if int64(secs) > left/1e9 {
		return math.MaxInt64
	}
	return now + int64(secs)*1e9 + int64(nsecs)
}

func (k *Kernel_t) sys_gettimeofday(p *proc.Proc_t, tvn int) int {
	if tvn == 0 {
		return 0
	}
	secs, nsecs := timer.Timespec(k.Clock.Wall())
	buf := make([]uint8, 16)
	util.Writen(buf, 8, 0, secs)
	util.Writen(buf, 8, 8, nsecs/1000)
	return int(p.Vm.K2user(buf, tvn))
}

// sys_times fills struct tms and returns the clock ticks since boot.
func (k *Kernel_t) sys_times(p *proc.Proc_t, tmsn int) int {
	if tmsn != 0 {
		if err := p.Vm.K2user(accnt.Mktms(&p.Atime, &p.Catime), tmsn); err != 0 {
			return int(err)
		}
	}
	return accnt.Ticks(k.Uptime())
}

func (k *Kernel_t) sys_uname(p *proc.Proc_t, utsn int) int {
	u := &k.Uname
	fields := []string{u.Sysname, u.Nodename, u.Release, u.Version,
		u.Machine, u.Domainname}
	buf := make([]uint8, UTSLEN*len(fields))
	for i, f := range fields {
		if len(f) >= UTSLEN {
			panic("uname field too long")
		}
		copy(buf[i*UTSLEN:], f)
	}
	if err := p.Vm.K2user(buf, utsn); err != 0 {
		return int(err)
	}
	return 0
}
