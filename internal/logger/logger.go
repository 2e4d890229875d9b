// Package logger adapts zap to the service Logger interface.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger exposing key/value logging methods.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger. Mode "prod"/"production" emits JSON at info level,
// "nop"/"off" discards everything, anything else is the development console
// encoder at debug level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "nop", "off", "none":
		return NewFromZap(zap.NewNop()), nil
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewFromZap(zapLogger), nil
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.SugaredLogger.Debugw(msg, normalize(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.SugaredLogger.Infow(msg, normalize(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.SugaredLogger.Warnw(msg, normalize(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.SugaredLogger.Errorw(msg, normalize(keysAndValues)...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(normalize(keysAndValues)...)}
}

// normalize stringifies typed keys such as domain.ResourceType so zap does
// not report them as ignored keys, and pads a dangling key.
func normalize(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv)+1)
	for i := 0; i < len(kv); i += 2 {
		key := kv[i]
		if s, ok := key.(interface{ String() string }); ok {
			key = s.String()
		} else if _, ok := key.(string); !ok {
			key = "invalid_key"
		}
		var val any = "<missing>"
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		if err, ok := val.(error); ok && err != nil {
			val = err.Error()
		}
		out = append(out, key, val)
	}
	return out
}
