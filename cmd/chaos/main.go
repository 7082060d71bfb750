package main

import "context"
import "flag"
import "fmt"
import "os"
import "os/signal"
import "syscall"

import "github.com/op/go-logging"

import "github.com/chaoskernel/chaos/afsfs"
import "github.com/chaoskernel/chaos/config"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/hart"
import "github.com/chaoskernel/chaos/kernel"
import "github.com/chaoskernel/chaos/klog"
import "github.com/chaoskernel/chaos/timer"
import "github.com/chaoskernel/chaos/ustr"

var log = logging.MustGetLogger("main")

// demo is installed at /bin/demo. it prints the first byte of its
// argument, grows the heap, maps a page, sleeps and exits with 0.
func demo() *hart.Prog_t {
	p := hart.Mkprog("demo")
	hello := p.Str("demo: arg ")
	nl := p.Str("\n")
	ts := p.Buf(0)
	p.Mv(hart.S1, hart.A1).
		Ld(hart.S2, hart.S1, 8).
		Ecall(defs.SYS_WRITE, hart.I(1), hart.I(hello), hart.I(10)).
		Ecall(defs.SYS_WRITE, hart.I(1), hart.R(hart.S2), hart.I(1)).
		Ecall(defs.SYS_WRITE, hart.I(1), hart.I(nl), hart.I(1)).
		Ecall(defs.SYS_BRK, hart.I(0)).
		Addi(hart.S3, hart.A0, 8192).
		Ecall(defs.SYS_BRK, hart.R(hart.S3)).
		Ecall(defs.SYS_MMAP, hart.I(0), hart.I(4096),
			hart.I(defs.PROT_READ|defs.PROT_WRITE),
			hart.I(defs.MAP_PRIVATE|defs.MAP_ANON), hart.I(-1), hart.I(0)).
		Sd(hart.S3, hart.A0, 0).
		Li(hart.T0, ts).
		Li(hart.T1, 0).
		Sd(hart.T1, hart.T0, 0).
		Li(hart.T1, 10*1000*1000).
		Sd(hart.T1, hart.T0, 8).
		Ecall(defs.SYS_NANOSLEEP, hart.I(ts), hart.I(0)).
		Compute(8).
		Exit(0)
	return p
}

// initprog forks n children that exec /bin/demo and reaps them until
// wait4 fails.
func initprog(n int) *hart.Prog_t {
	p := hart.Mkprog("init")
	path := p.Str("/bin/demo")
	argv := p.Argv("demo", "x")
	st := p.Buf(0)
	banner := p.Str("init: up\n")
	p.Ecall(defs.SYS_WRITE, hart.I(1), hart.I(banner), hart.I(9)).
		Li(hart.S1, n).
		Label("fork").
		Beq(hart.S1, 0, "reap").
		Ecall(defs.SYS_CLONE, hart.I(defs.SIGCHLD), hart.I(0)).
		Bne(hart.A0, 0, "forked").
		Ecall(defs.SYS_EXECVE, hart.I(path), hart.I(argv), hart.I(0)).
		Exit(127).
		Label("forked").
		Addi(hart.S1, hart.S1, -1).
		J("fork").
		Label("reap").
		Ecall(defs.SYS_WAIT4, hart.I(-1), hart.I(st), hart.I(0), hart.I(0)).
		Blt(hart.A0, 0, "done").
		J("reap").
		Label("done").
		Exit(0)
	return p
}

func main() {
	cfgpath := flag.String("c", "", "path to config file")
	nchild := flag.Int("n", 4, "number of demo processes init starts")
	flag.Parse()

	cfg := config.Default()
	if *cfgpath != "" {
		var err error
		if cfg, err = config.Load(*cfgpath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if err := klog.Setup(os.Stderr, cfg.Kernel.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %v: %v\n", cfg.Kernel.LogLevel, err)
		os.Exit(2)
	}

	fs, err := afsfs.MkFs(cfg.Fs.Root)
	if err != nil {
		log.Fatalf("filesystem %v: %v", cfg.Fs.Root, err)
	}
	progs := hart.MkProgs()
	var harts []kernel.Hart_i
	for i := 0; i < cfg.Nharts(); i++ {
		harts = append(harts, hart.MkHart(i, progs))
	}
	cons := kernel.MkConsole(os.Stdin, os.Stdout)
	k := kernel.Mkkernel(cfg, fs, timer.MkRealclock(), cons, harts)

	if err := fs.Fs_mkdir(ustr.Ustr("/bin"), 0755); err != 0 && err != -defs.EEXIST {
		log.Fatalf("mkdir /bin: %v", err)
	}
	if err := k.Install(ustr.Ustr("/bin/demo"), progs.Register(demo())); err != 0 {
		log.Fatalf("install /bin/demo: %v", err)
	}
	ip := initprog(*nchild)
	img := progs.Register(ip)
	initpath := ustr.Ustr(cfg.Init.Path)
	if err := k.Install(initpath, img); err != 0 {
		log.Fatalf("install %v: %v", initpath, err)
	}
	k.Boot(img, initpath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()
	status, err := k.Run(ctx)
	if err != nil {
		log.Errorf("kernel stopped: %v", err)
		os.Exit(1)
	}
	log.Infof("uptime %v ms", k.Uptime()/1e6)
	stop()
	os.Exit(defs.Exitcode(status))
}
