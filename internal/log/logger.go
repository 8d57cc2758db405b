package log

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created inside Options.Dir.
const FileName = "connwatch.log"

// Options configures NewLogger.
type Options struct {
	// Dir receives the rotated log file. Empty disables file output.
	Dir   string
	Level string
	// Console mirrors records to stderr. Keep it off while the TUI owns the terminal.
	Console bool

	console zapcore.WriteSyncer
}

// NewLogger builds a JSON logger writing to a rotated file and, optionally, stderr.
func NewLogger(opts Options) (*zap.Logger, error) {
	level := ParseLevel(opts.Level)
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(cfg)

	var cores []zapcore.Core
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(encoder, w, level))
	}
	if opts.Console {
		out := opts.console
		if out == nil {
			out = zapcore.Lock(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), out, level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// ParseLevel parses a log level string, defaulting to info.
func ParseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
