package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor attaches the caller's trace, or a new one, to every
// unary call and logs the call as a span.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = incoming(ctx)
		ctx, span := StartSpan(ctx, info.FullMethod)
		resp, err := handler(ctx, req)
		span.Finish(ctx, err)
		return resp, err
	}
}

// StreamServerInterceptor attaches trace context to streaming calls such as
// health Watch.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := incoming(ss.Context())
		Logger(ctx).Debug("stream opened", "method", info.FullMethod)
		return handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
	}
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }

// incoming attaches the trace and session named in incoming gRPC metadata,
// starting a new trace when there is none.
func incoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return WithContext(ctx, New())
	}
	m := make(map[string]string, 4)
	for _, key := range []string{TraceIDKey, SpanIDKey, SessionIDKey} {
		if vals := md.Get(key); len(vals) > 0 {
			m[key] = vals[0]
		}
	}
	return WithSession(WithContext(ctx, FromMap(m)), m[SessionIDKey])
}
