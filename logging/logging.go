// Package logging builds the application's zap logger: colored console output
// plus a size-rotated JSON log file.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects log level and destinations.
type Config struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

// DefaultConfig logs info and above to the console and to results/app.log.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		File:       filepath.Join("results", "app.log"),
		MaxSizeMB:  10,
		MaxBackups: 3,
		Console:    true,
	}
}

// NewEncoderConfig returns the console encoder config: ISO8601 time, colored
// capital levels, short callers.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a sugared logger from cfg. The returned close function flushes
// the logger and closes the log file.
//
// Arguments:
//   - cfg: Level and destinations.
//
// Returns:
//   - *zap.SugaredLogger: The logger.
//   - func() error: Flushes and releases the log file.
//   - error: An error if the level is unknown or the log directory cannot be created.
func New(cfg Config) (*zap.SugaredLogger, func() error, error) {
	return newWithConsole(cfg, os.Stdout)
}

func newWithConsole(cfg Config, console io.Writer) (*zap.SugaredLogger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	enabler := zap.NewAtomicLevelAt(level)

	var (
		cores []zapcore.Core
		file  *lumberjack.Logger
	)

	if cfg.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(NewEncoderConfig()),
			zapcore.AddSync(console),
			enabler,
		))
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to create log directory for %s", cfg.File)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		fileEncoder := NewEncoderConfig()
		fileEncoder.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoder),
			zapcore.AddSync(file),
			enabler,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() error {
		// Sync on a terminal stdout returns EINVAL on some platforms.
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger.Sugar(), closer, nil
}
