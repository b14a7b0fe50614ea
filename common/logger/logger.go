package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/lyzr/chatflow/common/trace"
)

// Logger wraps slog.Logger with contextual fields
type Logger struct {
	*slog.Logger
}

// Options controls logger output destinations
type Options struct {
	Level         string
	JSONFormat    bool
	EnableConsole bool
	EnableFile    bool
	Dir           string
}

// New creates a console logger with the given level and format
func New(level, format string) *Logger {
	return NewWithOptions(Options{
		Level:         level,
		JSONFormat:    format == "json",
		EnableConsole: true,
	})
}

// NewWithOptions creates a logger writing to console and/or a log file
func NewWithOptions(opts Options) *Logger {
	logLevel := parseLevel(opts.Level)

	var out io.Writer = os.Stdout
	if opts.EnableFile && opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err == nil {
			f, err := os.OpenFile(filepath.Join(opts.Dir, "chatflow.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				if opts.EnableConsole {
					out = io.MultiWriter(os.Stdout, f)
				} else {
					out = f
				}
			}
		}
	}

	var handler slog.Handler
	if opts.JSONFormat {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel})
	} else {
		// tint gives colored console output
		handler = tint.NewHandler(out, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext returns a logger annotated with trace and request ids from the context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	log := l.Logger
	if traceID := trace.TraceID(ctx); traceID != "" {
		log = log.With("trace_id", traceID)
	}
	if requestID := trace.RequestID(ctx); requestID != "" {
		log = log.With("request_id", requestID)
	}
	return &Logger{Logger: log}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// WithTaskID adds task_id to logger context
func (l *Logger) WithTaskID(taskID string) *Logger {
	return &Logger{Logger: l.With("task_id", taskID)}
}

// WithWorkflowID adds workflow_id to logger context
func (l *Logger) WithWorkflowID(workflowID string) *Logger {
	return &Logger{Logger: l.With("workflow_id", workflowID)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
