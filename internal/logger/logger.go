// Package logger builds the process logger: a logr.Logger over a log/slog
// text or JSON handler, with client-go's klog output routed into it.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
)

// Standard log field keys.
const (
	KeyCluster     = "cluster"
	KeyRunID       = "run_id"
	KeyARN         = "arn"
	KeyPathPrefix  = "path_prefix"
	KeyMappingType = "mapping_type"
	KeyNamespace   = "namespace"
	KeyName        = "name"
	KeyMappings    = "mappings"
	KeyDuration    = "duration"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

// slog levels for each configured level. Debug also enables logr
// verbosity 2, which carries per-identity skip decisions.
var levels = map[string]slog.Level{
	"debug":   slog.Level(-2),
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel converts a level name, ignoring case.
func ParseLevel(s string) (slog.Level, error) {
	l, ok := levels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New creates a logger for cfg.
func New(cfg Config) (logr.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return logr.Discard(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return logr.FromSlogHandler(handler), nil
}

// RedirectKlog sends client-go's klog output to log. Library messages are
// demoted one verbosity level below our own.
func RedirectKlog(log logr.Logger) {
	klog.SetLogger(log.WithName("client-go").V(1))
}
