// Package logging backs output.LoggerPort with zap, writing one
// structured JSON-lines file per run under log/ — the teacher shipped
// zap in go.mod but never wired it, using a hand-rolled JSON marshaler
// instead.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"browsercore/internal/application/port/output"
)

var _ output.LoggerPort = (*Logger)(nil)

type Logger struct {
	sugar *zap.SugaredLogger
	file  *os.File
}

// New opens log/<timestamp>_<taskName>.log and returns a Logger writing
// to it. taskName may be empty for process-wide logging (e.g. the HTTP
// server's own startup/shutdown messages) rather than one run's.
func New(taskName string) (*Logger, error) {
	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02_15-04-05"), sanitize(taskName))

	if err := os.MkdirAll("log", 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.Create(filepath.Join("log", filename))
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.DebugLevel)
	return &Logger{sugar: zap.New(core).Sugar(), file: file}, nil
}

func wrap(sugar *zap.SugaredLogger, file *os.File) *Logger {
	return &Logger{sugar: sugar, file: file}
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *Logger) WithField(key string, value any) output.LoggerPort {
	return wrap(l.sugar.With(key, value), l.file)
}

func (l *Logger) WithFields(fields map[string]any) output.LoggerPort {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return wrap(l.sugar.With(args...), l.file)
}

func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func sanitize(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '_')
		}
	}
	out := string(result)
	if out == "" {
		return "task"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}
