package logutil

import (
    "io"
    "log"
    "os"
    "strings"
    "sync/atomic"

    "github.com/hashicorp/go-hclog"
)

var jsonMode atomic.Bool

func init() {
    if os.Getenv("MESH_LOG_JSON") == "1" || os.Getenv("MESH_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
}

// SetJSON switches loggers created afterwards to JSON output.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// Options controls logger construction. Zero values fall back to the
// MESH_LOG_* environment and then to info level on stderr.
type Options struct {
    Name   string
    Level  string
    JSON   bool
    Output io.Writer
}

// New builds a named hclog logger.
func New(opts Options) hclog.Logger {
    level := opts.Level
    if level == "" { level = os.Getenv("MESH_LOG_LEVEL") }
    lvl := hclog.LevelFromString(strings.ToLower(level))
    if lvl == hclog.NoLevel { lvl = hclog.Info }
    out := opts.Output
    if out == nil { out = os.Stderr }
    return hclog.New(&hclog.LoggerOptions{
        Name:       opts.Name,
        Level:      lvl,
        Output:     out,
        JSONFormat: opts.JSON || jsonMode.Load(),
    })
}

// Default returns a logger named "mesh" configured from the environment.
func Default() hclog.Logger { return New(Options{Name: "mesh"}) }

// OrDefault returns l, or Default() when l is nil.
func OrDefault(l hclog.Logger) hclog.Logger {
    if l == nil { return Default() }
    return l
}

// Standard adapts l to a *log.Logger for libraries that only accept the
// standard logger (memberlist). Level prefixes such as "[DEBUG]" are mapped
// to hclog levels.
func Standard(l hclog.Logger) *log.Logger {
    return OrDefault(l).StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})
}
