package config

import "errors"
import "fmt"
import "os"

import "github.com/naoina/toml"
import "github.com/op/go-logging"
import "github.com/shirou/gopsutil/v3/cpu"
import "github.com/shirou/gopsutil/v3/mem"

var log = logging.MustGetLogger("config")

const (
	MAXHARTS = 8
	// auto-sized frame pools use this share of free host memory
	MEMSHARE = 16
	MINPAGES = 1 << 10
	MAXPAGES = 1 << 18
)

type Kernel_t struct {
	Harts    int
	Pages    int
	Quantum  int
	TickMs   int `toml:"tick_ms"`
	LogLevel string
}

type Limits_t struct {
	Procs  int
	Nofile int
	Vmas   int
	// live pipes, system wide
	Pipes int
}

type Uname_t struct {
	Sysname    string
	Nodename   string
	Release    string
	Version    string
	Machine    string
	Domainname string
}

type Fs_t struct {
	Root string
}

type Init_t struct {
	Path string
}

type Config_t struct {
	Kernel Kernel_t
	Limits Limits_t
	Uname  Uname_t
	Fs     Fs_t
	Init   Init_t
}

// Default returns the configuration used for missing keys.
func Default() *Config_t {
	return &Config_t{
		Kernel: Kernel_t{Quantum: 4, TickMs: 10, LogLevel: "INFO"},
		Limits: Limits_t{Procs: 1e4, Nofile: 1024, Vmas: 4096, Pipes: 1e4},
		Uname: Uname_t{
			Sysname:  "Chaos",
			Nodename: "None",
			Release:  "0.0.1",
			Version:  "#1-Chaos RISC-V 64bit Version 0.0.1",
			Machine:  "riscv64",
		},
		Fs:   Fs_t{Root: "mem://localhost/chaos"},
		Init: Init_t{Path: "/initproc"},
	}
}

// Parse decodes buf over the defaults and validates the result.
func Parse(buf []byte) (*Config_t, error) {
	c := Default()
	if len(buf) != 0 {
		if err := toml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if errs := c.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config_t, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(buf)
}

func (c *Config_t) Validate() []error {
	var errs []error
	k := &c.Kernel
	if k.Harts < 0 || k.Harts > MAXHARTS {
		errs = append(errs, fmt.Errorf("kernel.harts %v out of [0, %v]", k.Harts, MAXHARTS))
	}
	if k.Pages < 0 {
		errs = append(errs, fmt.Errorf("kernel.pages %v negative", k.Pages))
	}
	if k.Quantum <= 0 {
		errs = append(errs, fmt.Errorf("kernel.quantum must be positive"))
	}
	if k.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("kernel.tick_ms must be positive"))
	}
	if _, err := logging.LogLevel(k.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("kernel.loglevel: %w", err))
	}
	l := &c.Limits
	if l.Procs <= 0 || l.Nofile <= 0 || l.Vmas <= 0 || l.Pipes <= 0 {
		errs = append(errs, fmt.Errorf("limits must be positive"))
	}
	if c.Fs.Root == "" {
		errs = append(errs, fmt.Errorf("fs.root is empty"))
	}
	if len(c.Init.Path) == 0 || c.Init.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("init.path %q is not absolute", c.Init.Path))
	}
	for _, f := range []string{c.Uname.Sysname, c.Uname.Nodename,
		c.Uname.Release, c.Uname.Version, c.Uname.Machine, c.Uname.Domainname} {
		if len(f) >= 65 {
			errs = append(errs, fmt.Errorf("uname field %q too long", f))
		}
	}
	return errs
}

// Nharts returns the configured hart count, or the host's logical CPU
// count capped at MAXHARTS.
func (c *Config_t) Nharts() int {
	if c.Kernel.Harts > 0 {
		return c.Kernel.Harts
	}
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		log.Warningf("cannot count host cpus: %v", err)
		return 1
	}
	if n > MAXHARTS {
		n = MAXHARTS
	}
	return n
}

// Npages returns the configured frame pool size, or a share of the host's
// available memory.
func (c *Config_t) Npages() int {
	if c.Kernel.Pages > 0 {
		return c.Kernel.Pages
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warningf("cannot read host memory: %v", err)
		return MINPAGES
	}
	n := int(vm.Available / MEMSHARE / 4096)
	if n < MINPAGES {
		n = MINPAGES
	}
	if n > MAXPAGES {
		n = MAXPAGES
	}
	return n
}
