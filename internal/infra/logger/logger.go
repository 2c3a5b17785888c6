package logger

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base     *zap.Logger
	initOnce sync.Once
)

// New builds the process logger once: JSON in production, coloured console output elsewhere.
// Later calls return the first logger regardless of env.
func New(env string) (*zap.Logger, error) {
	var err error
	initOnce.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if env == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		base, err = cfg.Build(zap.Fields(zap.String("env", env)))
	})
	return base, err
}

// WithContext annotates log (the process logger when nil) with the request id and the active
// trace id carried by ctx.
func WithContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	if log == nil {
		log = base
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		return log
	}

	fields := make([]zap.Field, 0, 2)
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return log.With(fields...)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey{}).(string)
	return id
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// MaskEmail keeps the first character of the local part and the whole domain.
// Example: alice@example.com -> a***@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***"
	}
	user, domain := email[:at], email[at+1:]
	if user == "" {
		return "***@" + domain
	}
	_, size := utf8.DecodeRuneInString(user)
	return user[:size] + "***@" + domain
}

// MaskPhone keeps the first two and the last two characters.
// Example: 5551234567 -> 55****67
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return phone[:2] + "****" + phone[len(phone)-2:]
}

// MaskIP performs partial IP masking, showing first 2 octets for IPv4
// Example: 192.168.1.100 -> 192.168.*.*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}
