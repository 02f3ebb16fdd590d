package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/resilience"
	"github.com/GriffinCanCode/parley/internal/trace"
)

// Minting is anything that can produce a credential on demand.
type Minting interface {
	Issue(ctx context.Context) (Credential, error)
}

// Handler serves GET requests with a fresh credential. A breaker keeps a
// failing upstream from being hammered by reconnecting clients.
func Handler(issuer Minting, breaker *resilience.Breaker, m *metrics.Metrics) http.Handler {
	// No retries here: the voice client retries on its side.
	policy := resilience.Policy{Breaker: breaker}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, span := trace.StartSpan(r.Context(), "token.issue")
		cred, err := resilience.Call(ctx, policy, issuer.Issue)
		span.Finish(ctx, err)

		if err != nil {
			status := http.StatusInternalServerError
			outcome := "error"
			if errors.Is(err, resilience.ErrOpen) {
				status, outcome = http.StatusServiceUnavailable, "rejected"
				trace.Logger(ctx).Warn("token request rejected", "breaker", breaker.Name(), "rejected", breaker.Rejected())
			}
			m.TokenRequests.WithLabelValues(outcome).Inc()
			trace.Logger(ctx).Error("token issue failed", "error", err)
			writeJSON(w, status, map[string]string{"error": apperrors.UserMessage(apperrors.Token(err))})
			return
		}

		m.TokenRequests.WithLabelValues("ok").Inc()
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, Response{Token: cred})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
