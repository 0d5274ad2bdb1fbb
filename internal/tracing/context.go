package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type fieldsKey struct{}

// Fields is the per-update correlation data carried through a context.
type Fields struct {
	TraceID   string
	UserID    string
	SessionID string
	Channel   string
}

// NewTraceID returns a fresh correlation id for one inbound update.
func NewTraceID() string {
	return uuid.New().String()
}

// FromContext returns the fields stored in ctx. The zero value means none.
func FromContext(ctx context.Context) Fields {
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

// NewContext stores f in ctx, replacing whatever was there.
func NewContext(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, fieldsKey{}, f)
}

func update(ctx context.Context, fn func(*Fields)) context.Context {
	f := FromContext(ctx)
	fn(&f)
	return NewContext(ctx, f)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *Fields) { f.TraceID = id })
}

func WithUserID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *Fields) { f.UserID = id })
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *Fields) { f.SessionID = id })
}

func WithChannel(ctx context.Context, name string) context.Context {
	return update(ctx, func(f *Fields) { f.Channel = name })
}

func GetTraceID(ctx context.Context) string { return FromContext(ctx).TraceID }

func GetUserID(ctx context.Context) string { return FromContext(ctx).UserID }

func GetSessionID(ctx context.Context) string { return FromContext(ctx).SessionID }

func GetChannel(ctx context.Context) string { return FromContext(ctx).Channel }

// LoggerFromContext tags base with the correlation fields in ctx and, when a
// span is active, its OpenTelemetry ids.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	f := FromContext(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if f == (Fields{}) && !sc.IsValid() {
		return base
	}

	lc := base.With()
	if f.TraceID != "" {
		lc = lc.Str("trace_id", f.TraceID)
	}
	if f.UserID != "" {
		lc = lc.Str("user_id", f.UserID)
	}
	if f.SessionID != "" {
		lc = lc.Str("session_id", f.SessionID)
	}
	if f.Channel != "" {
		lc = lc.Str("channel", f.Channel)
	}
	if sc.IsValid() {
		lc = lc.Str("otel_trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}
	return lc.Logger()
}
