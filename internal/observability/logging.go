// Package observability provides structured logging and Prometheus metrics
// for the agent core.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with request correlation and redaction of secrets and
// personal data before emission.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
	keys    map[string]bool
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Output is the log writer. Defaults to os.Stdout.
	Output io.Writer

	// RedactPatterns are additional regex patterns applied on top of the
	// built-in secret and PII patterns.
	RedactPatterns []string

	// RedactKeys lists map keys whose values are always masked.
	// Defaults to password, token, authorization, cookie, secret.
	RedactKeys []string
}

type contextKey string

const (
	requestIDKey      contextKey = "request_id"
	conversationIDKey contextKey = "conversation_id"
	userIDKey         contextKey = "user_id"
)

// defaultRedactPatterns covers credentials plus the personal data classes
// that must never reach the log sink: emails, phone numbers, SSN and
// card-shaped digit runs, IPv4 addresses.
var defaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{24,}`,
	`sk-[a-zA-Z0-9]{32,}`,
	`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
	`\+?\d{1,3}[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`,
	`\b\d{3}-\d{2}-\d{4}\b`,
	`\b(?:\d[ \-]?){13,16}\b`,
	`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
}

var defaultRedactKeys = []string{"password", "token", "authorization", "cookie", "secret"}

// NewLogger creates a structured logger. Invalid redact patterns are
// skipped rather than failing startup.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	patterns := append(append([]string{}, defaultRedactPatterns...), cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	keys := make(map[string]bool, len(defaultRedactKeys)+len(cfg.RedactKeys))
	for _, k := range defaultRedactKeys {
		keys[k] = true
	}
	for _, k := range cfg.RedactKeys {
		keys[normalizeKey(k)] = true
	}

	return &Logger{
		logger:  slog.New(handler),
		redacts: redacts,
		keys:    keys,
	}
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard, Level: "error"})
}

// Debug logs at debug level with redaction applied to all values.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level with redaction applied to all values.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level with redaction applied to all values.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level with redaction applied to all values.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// WithFields returns a logger with fields attached to every record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		logger:  l.logger.With(args...),
		redacts: l.redacts,
		keys:    l.keys,
	}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+6)
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id, ok := ctx.Value(conversationIDKey).(string); ok && id != "" {
		attrs = append(attrs, "conversation_id", id)
	}
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		attrs = append(attrs, "user_id", id)
	}
	var key string
	for i, arg := range args {
		// Even positions are keys in the key/value stream; values under a
		// sensitive key are masked whole.
		if i%2 == 0 {
			key, _ = arg.(string)
			attrs = append(attrs, arg)
			continue
		}
		if l.keys[normalizeKey(key)] {
			attrs = append(attrs, "[REDACTED]")
		} else {
			attrs = append(attrs, l.redactValue(arg))
		}
	}
	l.logger.Log(ctx, level, l.Redact(msg), attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.Redact(val)
	case error:
		return l.Redact(val.Error())
	case []byte:
		return l.Redact(string(val))
	case map[string]any:
		return l.RedactMap(val)
	default:
		return v
	}
}

// Redact applies every redaction pattern to s.
func (l *Logger) Redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// RedactMap masks configured sensitive keys and redacts string values.
func (l *Logger) RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if l.keys[normalizeKey(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = l.redactValue(v)
	}
	return out
}

// normalizeKey folds header-style and env-style key spellings together.
func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(k), "-", "_"))
}

// WithRequestID attaches a request id to the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithConversationID attaches a conversation id to the context.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// WithUserID attaches a user id to the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// RequestID retrieves the request id from the context, if any.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ConversationID retrieves the conversation id from the context, if any.
func ConversationID(ctx context.Context) string {
	if id, ok := ctx.Value(conversationIDKey).(string); ok {
		return id
	}
	return ""
}

// UserID retrieves the user id from the context, if any.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
