package logging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modbuslabs/gomodbus/common"
)

// Logger implements common.LoggerInterface and common.LoggerInterfaceHexdump
// on top of a *zap.Logger. zap has no TRACE level, so LevelTrace is gated by
// our own level check before delegating to zap's Debug.
type Logger struct {
	mu     sync.Mutex
	level  common.LogLevel
	zl     *zap.Logger
	fields map[string]interface{}
}

// Option is a function that configures a Logger
type Option func(*Logger)

// WithLevel sets the log level
func WithLevel(level common.LogLevel) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithZapLogger replaces the underlying *zap.Logger, e.g. to reroute
// output or change the encoder.
func WithZapLogger(zl *zap.Logger) Option {
	return func(l *Logger) {
		l.zl = zl
	}
}

// WithFields adds fields to the logger
func WithFields(fields map[string]interface{}) Option {
	return func(l *Logger) {
		if l.fields == nil {
			l.fields = make(map[string]interface{})
		}
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

func levelToZap(level common.LogLevel) zapcore.Level {
	switch level {
	case common.LevelTrace, common.LevelDebug:
		return zapcore.DebugLevel
	case common.LevelInfo:
		return zapcore.InfoLevel
	case common.LevelWarn:
		return zapcore.WarnLevel
	case common.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1 // effectively disables output
	}
}

func defaultZapLogger() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)
	return zap.New(core)
}

// NewLogger creates a new logger with the given options. The default
// writes console-formatted entries to stdout at info level.
func NewLogger(options ...Option) *Logger {
	logger := &Logger{
		level:  common.LevelInfo,
		zl:     defaultZapLogger(),
		fields: make(map[string]interface{}),
	}

	for _, option := range options {
		option(logger)
	}

	return logger
}

func (l *Logger) fieldsAsZap() []zap.Field {
	if len(l.fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(l.fields))
	for k, v := range l.fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

// Hexdump outputs a hexdump of the given data at TRACE level.
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	l.mu.Lock()
	level := l.level
	zl := l.zl
	fields := l.fieldsAsZap()
	l.mu.Unlock()

	if level > common.LevelTrace {
		return
	}

	var b strings.Builder
	b.WriteString("offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f\n")
	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(&b, "%08x", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				b.WriteString(" |")
			}
			b.WriteByte(' ')
			if i+j < len(data) {
				fmt.Fprintf(&b, "%02x", data[i+j])
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}

	zl.Debug("hexdump\n"+b.String(), fields...)
}

// Trace logs a trace message (mapped onto zap's Debug level).
func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= common.LevelTrace {
		l.zl.Debug(fmt.Sprintf(format, args...), l.fieldsAsZap()...)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= common.LevelDebug {
		l.zl.Debug(fmt.Sprintf(format, args...), l.fieldsAsZap()...)
	}
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= common.LevelInfo {
		l.zl.Info(fmt.Sprintf(format, args...), l.fieldsAsZap()...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= common.LevelWarn {
		l.zl.Warn(fmt.Sprintf(format, args...), l.fieldsAsZap()...)
	}
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= common.LevelError {
		l.zl.Error(fmt.Sprintf(format, args...), l.fieldsAsZap()...)
	}
}

// WithFields returns a new logger with the given fields merged in.
func (l *Logger) WithFields(fields map[string]interface{}) common.LoggerInterface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewLogger(
		WithLevel(l.level),
		WithZapLogger(l.zl),
		WithFields(l.fields),
		WithFields(fields),
	)
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() common.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel sets the log level.
func (l *Logger) SetLevel(level common.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}
