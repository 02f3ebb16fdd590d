package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/resilience"
)

type fakeMinter struct {
	got  *genai.CreateAuthTokenConfig
	name string
	err  error
}

func (f *fakeMinter) Create(_ context.Context, cfg *genai.CreateAuthTokenConfig) (*genai.AuthToken, error) {
	f.got = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.AuthToken{Name: f.name}, nil
}

func TestIssuerRequestsSingleUseToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &fakeMinter{name: "auth_tokens/abc"}
	iss := NewIssuer(m, 0, 0)
	iss.now = func() time.Time { return now }

	cred, err := iss.Issue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Credential{
		Name:                 "auth_tokens/abc",
		ExpireTime:           now.Add(30 * time.Minute),
		NewSessionExpireTime: now.Add(time.Minute),
	}, cred)
	require.NotNil(t, m.got)
	require.NotNil(t, m.got.Uses)
	assert.EqualValues(t, 1, *m.got.Uses)
	assert.Equal(t, "v1alpha", m.got.HTTPOptions.APIVersion)
}

func TestIssuerFailures(t *testing.T) {
	_, err := NewIssuer(&fakeMinter{err: errors.New("quota")}, 0, 0).Issue(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTokenFailed))

	_, err = NewIssuer(&fakeMinter{}, 0, 0).Issue(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTokenFailed), "empty name is a failure")
}

func TestNewGenAIIssuerRequiresKey(t *testing.T) {
	_, err := NewGenAIIssuer(context.Background(), "", 0, 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfigInvalid))
}

type issuerFunc func(ctx context.Context) (Credential, error)

func (f issuerFunc) Issue(ctx context.Context) (Credential, error) { return f(ctx) }

func TestHandlerServesCredential(t *testing.T) {
	h := Handler(issuerFunc(func(context.Context) (Credential, error) {
		return Credential{Name: "tok"}, nil
	}), resilience.New(resilience.TokenConfig()), metrics.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/token", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok", resp.Token.Name)
	assert.NotContains(t, rec.Body.String(), "expireTime", "zero times are omitted")
}

func TestHandlerErrorsAndBreaker(t *testing.T) {
	breaker := resilience.New(resilience.Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	var calls atomic.Int32
	h := Handler(issuerFunc(func(context.Context) (Credential, error) {
		calls.Add(1)
		return Credential{}, apperrors.Token(errors.New("upstream"))
	}), breaker, metrics.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/token", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to generate token")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/token", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.EqualValues(t, 1, calls.Load(), "open breaker must not reach the issuer")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/token", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":{"name":"auth_tokens/xyz","expireTime":"2026-01-02T03:34:05Z"}}`))
	}))
	defer srv.Close()

	cred, err := NewClient(srv.URL, time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "auth_tokens/xyz", cred.Name)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 34, 5, 0, time.UTC), cred.ExpireTime)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"token":{"name":"second"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, resilience.New(resilience.TokenConfig()))
	c.policy.Retry.BaseDelay = time.Millisecond

	cred, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", cred.Name)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTokenFailed))
	assert.Equal(t, "Failed to generate token", apperrors.UserMessage(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Fetch(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTokenFailed))
}

func TestStatic(t *testing.T) {
	cred, err := Static("dev").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev", cred.Name)
}
