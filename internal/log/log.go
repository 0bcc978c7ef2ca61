// Package log wraps gopkg.in/op/go-logging.v1 behind the small
// Backend/GetLogger surface the teacher corpus threads through its
// constructors (server/cborplugin/client.go, disk.go,
// client/cborplugin/incoming_conn.go all take a *log.Backend and call
// backend.GetLogger(module) rather than reaching for a package-global
// logger).
package log

import (
	"io"
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

// Backend owns the process-wide logging configuration and hands out
// per-module *logging.Logger instances.
type Backend struct {
	level   logging.Level
	backend logging.LeveledBackend
}

// New builds a Backend writing to w at the given level name
// ("DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"). An empty
// levelName defaults to "INFO".
func New(w io.Writer, levelName string) (*Backend, error) {
	if w == nil {
		w = os.Stderr
	}
	if levelName == "" {
		levelName = "INFO"
	}
	level, err := logging.LogLevel(levelName)
	if err != nil {
		return nil, err
	}
	format := logging.MustStringFormatter(
		"%{time:2006-01-02 15:04:05.000} %{level:.4s} %{module}: %{message}",
	)
	base := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(base, format)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	return &Backend{level: level, backend: leveled}, nil
}

// GetLogger returns a logger scoped to module, sharing this backend's
// output and level.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b.backend)
	return l
}
