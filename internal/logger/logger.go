package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger = zap.NewNop().Sugar()

// Init initializes the process-wide logger.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		global = zap.NewNop().Sugar()
		return nil
	}

	level := parseLevel(levelStr)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var cores []zapcore.Core
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}
	if console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	global = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered log entries.
func Sync() {
	_ = global.Sync()
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	global.Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	global.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	global.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	global.Errorf(format, args...)
}
