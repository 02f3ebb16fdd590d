package resilience

import "context"

// Policy pairs a breaker with a retry budget for one upstream. The zero
// value makes a single unguarded attempt.
type Policy struct {
	Breaker *Breaker
	Retry   RetryConfig
}

// TokenPolicy guards credential fetches on the connect path.
func TokenPolicy(b *Breaker) Policy {
	return Policy{Breaker: b, Retry: TokenRetryConfig()}
}

// Call runs fn under p. Every attempt passes through the breaker, and an
// open breaker ends the retry loop at once.
func Call[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, p.Retry, func() error {
		if p.Breaker != nil {
			if err := p.Breaker.Allow(); err != nil {
				return err
			}
		}
		v, err := fn(ctx)
		if p.Breaker != nil {
			p.Breaker.Record(err)
		}
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
