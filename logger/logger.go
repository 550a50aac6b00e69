// logger/logger.go
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process-wide logger.
type Options struct {
	Level     string // console level: debug, info, warn, error
	File      string // optional log file, appended to
	FileLevel string // minimum level written to File, default "error"
	Console   bool   // write to stdout
	NoColor   bool
}

type Logger struct {
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	file    *os.File
	console bool
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

// ensureInitialized creates a console logger if Init was never called
func ensureInitialized() *Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(zap.NewAtomicLevelAt(zapcore.DebugLevel), nil, zapcore.ErrorLevel, true, false)
		}
	})
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Init replaces the process-wide logger.
// If File is empty, logs only to console; if Console is false, logs only to file.
func Init(opts Options) error {
	level, err := parseLevel(opts.Level, zapcore.InfoLevel)
	if err != nil {
		return err
	}
	fileLevel, err := parseLevel(opts.FileLevel, zapcore.ErrorLevel)
	if err != nil {
		return err
	}

	var file *os.File
	if opts.File != "" {
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	if file == nil && !opts.Console {
		return fmt.Errorf("no output destination specified")
	}

	l := newLogger(zap.NewAtomicLevelAt(level), file, fileLevel, opts.Console, opts.NoColor)

	once.Do(func() {}) // an explicit Init wins over the lazy default
	mu.Lock()
	old := defaultLogger
	defaultLogger = l
	mu.Unlock()

	if old != nil {
		old.close()
	}
	return nil
}

func newLogger(level zap.AtomicLevel, file *os.File, fileLevel zapcore.Level, console, noColor bool) *Logger {
	var cores []zapcore.Core

	if console {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if noColor {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level))
	}

	if file != nil {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), fileLevel))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{
		sugar:   z.Sugar(),
		level:   level,
		file:    file,
		console: console,
	}
}

func parseLevel(text string, def zapcore.Level) (zapcore.Level, error) {
	if text == "" {
		return def, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(text))
	if err != nil {
		return def, fmt.Errorf("invalid log level %q: %w", text, err)
	}
	return lvl, nil
}

// SetLevel sets the minimum console level (debug, info, warn, error)
func SetLevel(level string) error {
	l := ensureInitialized()
	lvl, err := parseLevel(level, zapcore.InfoLevel)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

func (l *Logger) close() {
	_ = l.sugar.Sync()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// Sync flushes buffered entries
func Sync() {
	_ = ensureInitialized().sugar.Sync()
}

// Close flushes and closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil {
		defaultLogger.close()
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) { ensureInitialized().sugar.Debug(v...) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { ensureInitialized().sugar.Debugf(format, v...) }

// Debugw logs a debug message with key/value pairs
func Debugw(msg string, kv ...interface{}) { ensureInitialized().sugar.Debugw(msg, kv...) }

// Info logs an info message
func Info(v ...interface{}) { ensureInitialized().sugar.Info(v...) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { ensureInitialized().sugar.Infof(format, v...) }

// Infow logs an info message with key/value pairs
func Infow(msg string, kv ...interface{}) { ensureInitialized().sugar.Infow(msg, kv...) }

// Warn logs a warning message
func Warn(v ...interface{}) { ensureInitialized().sugar.Warn(v...) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { ensureInitialized().sugar.Warnf(format, v...) }

// Warnw logs a warning with key/value pairs
func Warnw(msg string, kv ...interface{}) { ensureInitialized().sugar.Warnw(msg, kv...) }

// Error logs an error message
func Error(v ...interface{}) { ensureInitialized().sugar.Error(v...) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { ensureInitialized().sugar.Errorf(format, v...) }

// Errorw logs an error with key/value pairs
func Errorw(msg string, kv ...interface{}) { ensureInitialized().sugar.Errorw(msg, kv...) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) { ensureInitialized().sugar.Fatal(v...) }

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) { ensureInitialized().sugar.Fatalf(format, v...) }
