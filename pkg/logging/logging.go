// Package logging builds the engine-wide logr.Logger. Console output goes to
// stderr; a second sink appends to logs/migration_<date>.log with rotation so
// long migrations do not fill the disk.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	LogDir string // empty disables the file sink
}

// New constructs a logr.Logger backed by zap. The returned flush function
// must be called before process exit.
func New(opts Options) (logr.Logger, func(), error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return logr.Logger{}, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	if opts.Format == "json" {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
			return logr.Logger{}, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileSink := &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogDir, fmt.Sprintf("migration_%s.log", time.Now().Format("2006-01-02"))),
			MaxSize:    100, // megabytes
			MaxBackups: 10,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), level))
	}

	zl := zap.New(zapcore.NewTee(cores...))
	flush := func() { _ = zl.Sync() }
	return zapr.NewLogger(zl), flush, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}
