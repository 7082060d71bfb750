package klog

import "io"
import "strings"

import "github.com/op/go-logging"

const format = "%{time}: %{color}%{module} %{level:.1s} > %{message} %{color:reset}"

// Setup sends every kernel log to w at level and above. level is a
// go-logging level name such as "INFO" or "DEBUG".
func Setup(w io.Writer, level string) error {
	lvl, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		return err
	}
	formatter := logging.MustStringFormatter(format)
	backend := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0),
		formatter)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

// Quiet drops everything below ERROR; tests use it.
func Quiet(w io.Writer) {
	if err := Setup(w, "ERROR"); err != nil {
		panic(err)
	}
}
