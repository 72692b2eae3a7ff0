package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process logger.
type Options struct {
	// Verbose enables debug output (logr V(1)).
	Verbose bool
	// Format is "console" or "json".
	Format string
	// File additionally receives JSON records when set.
	File string
	// Writer defaults to stderr.
	Writer io.Writer
}

// New builds a zap-backed logr.Logger. The returned closer flushes buffered
// entries and closes the log file.
func New(opts Options) (logr.Logger, io.Closer, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
		encoder = zapcore.NewConsoleEncoder(cfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return logr.Discard(), nopCloser{}, fmt.Errorf("unknown log format %q", opts.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), level)}
	closer := &closer{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return logr.Discard(), nopCloser{}, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logr.Discard(), nopCloser{}, fmt.Errorf("open log file: %w", err)
		}
		closer.file = file
		fileLevel := zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(file), fileLevel))
	}

	z := zap.New(zapcore.NewTee(cores...))
	closer.logger = z
	return zapr.NewLogger(z), closer, nil
}

type closer struct {
	logger *zap.Logger
	file   *os.File
}

func (c *closer) Close() error {
	_ = c.logger.Sync()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
