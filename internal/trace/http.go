package trace

import (
	"context"
	"net/http"
)

// Middleware gives every request a trace, continuing the caller's when the
// trace headers are present, and echoes the trace id so a UI can quote it
// in bug reports. A UI that already knows its session id may send it in
// x-session-id to have the request's lines tagged with it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := FromMap(map[string]string{
			TraceIDKey: r.Header.Get(TraceIDKey),
			SpanIDKey:  r.Header.Get(SpanIDKey),
		})
		w.Header().Set(TraceIDKey, tc.TraceID)

		ctx := WithSession(WithContext(r.Context(), tc), r.Header.Get(SessionIDKey))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ForCommand returns the context a control command runs in. A command that
// names a trace id joins that trace; otherwise it stays in the trace of the
// websocket it arrived on.
func ForCommand(ctx context.Context, traceID string) context.Context {
	if traceID != "" {
		return WithContext(ctx, Context{TraceID: traceID, SpanID: generateSpanID()})
	}
	ctx, _ = EnsureContext(ctx)
	return ctx
}
