package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// ErrorObject represents the error format.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// LogEntry represents the structured log format.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`
	Level     string       `json:"level"`
	Service   string       `json:"service"`
	Action    string       `json:"action"`
	Message   string       `json:"message"`
	Hostname  string       `json:"hostname"`
	RequestID string       `json:"request_id"`
	Error     *ErrorObject `json:"error,omitempty"`
	Details   any          `json:"details,omitempty"`
}

// Logger represents a custom structured logger.
type Logger struct {
	service  string
	hostname string

	mu  sync.Mutex
	out io.Writer
}

// NewLogger creates a new structured logger writing to stdout.
func NewLogger(service string) *Logger {
	return NewLoggerTo(service, os.Stdout)
}

// NewLoggerTo creates a structured logger writing JSON lines to w.
func NewLoggerTo(service string, w io.Writer) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Logger{
		service:  service,
		hostname: hostname,
		out:      w,
	}
}

// Discard returns a logger that drops every entry. Useful in tests.
func Discard() *Logger {
	return NewLoggerTo("test", io.Discard)
}

// Define an unexported type for context keys.
type ctxKey string

// requestIDKey is the context key for the request ID.
const requestIDKey ctxKey = "request_id"

// WithRequestID returns a context carrying a request id (useful for HTTP/mq hops).
func (logger *Logger) WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// RequestIDFrom returns the request id saved in the context.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// emit marshals the provided log entry.
func (logger *Logger) emit(entry LogEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
		return
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	_, _ = logger.out.Write(append(b, '\n'))
}

func (logger *Logger) entry(ctx context.Context, level, action, msg string) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   logger.service,
		Action:    action,
		Message:   msg,
		Hostname:  logger.hostname,
		RequestID: RequestIDFrom(ctx),
	}
}

// -- Logger helper functions --

func (logger *Logger) Info(ctx context.Context, action, msg string, details any) {
	entry := logger.entry(ctx, "INFO", action, msg)
	entry.Details = details
	logger.emit(entry)
}

func (logger *Logger) Debug(ctx context.Context, action, msg string, details any) {
	entry := logger.entry(ctx, "DEBUG", action, msg)
	entry.Details = details
	logger.emit(entry)
}

func (logger *Logger) Warn(ctx context.Context, action, msg string, details any) {
	entry := logger.entry(ctx, "WARN", action, msg)
	entry.Details = details
	logger.emit(entry)
}

// Error logs at ERROR level. err may be nil.
func (logger *Logger) Error(ctx context.Context, action, msg string, err error) {
	entry := logger.entry(ctx, "ERROR", action, msg)
	if err != nil {
		entry.Error = &ErrorObject{
			Msg:   err.Error(),
			Stack: string(debug.Stack()),
		}
	}
	logger.emit(entry)
}
