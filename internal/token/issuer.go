package token

import (
	"context"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

// Issuer defaults mirror the Live API's own defaults.
const (
	DefaultTTL        = 30 * time.Minute
	DefaultSessionTTL = time.Minute
	DefaultUses       = 1
	apiVersion        = "v1alpha"
)

// Minter creates auth tokens. *genai.Tokens satisfies it.
type Minter interface {
	Create(ctx context.Context, config *genai.CreateAuthTokenConfig) (*genai.AuthToken, error)
}

// Issuer mints single-use credentials with the server's API key.
type Issuer struct {
	minter     Minter
	ttl        time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer. Zero durations take the defaults.
func NewIssuer(minter Minter, ttl, sessionTTL time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Issuer{minter: minter, ttl: ttl, sessionTTL: sessionTTL, now: time.Now}
}

// NewGenAIIssuer builds an issuer backed by the Gemini API.
func NewGenAIIssuer(ctx context.Context, apiKey string, ttl, sessionTTL time.Duration) (*Issuer, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "create genai client")
	}
	return NewIssuer(client.AuthTokens, ttl, sessionTTL), nil
}

// Issue mints a credential usable once, for a session that must start within
// the session window.
func (i *Issuer) Issue(ctx context.Context) (Credential, error) {
	now := i.now()
	expire := now.Add(i.ttl)
	newSession := now.Add(i.sessionTTL)

	tok, err := i.minter.Create(ctx, &genai.CreateAuthTokenConfig{
		Uses:                 genai.Ptr[int32](DefaultUses),
		ExpireTime:           expire,
		NewSessionExpireTime: newSession,
		HTTPOptions:          &genai.HTTPOptions{APIVersion: apiVersion},
	})
	if err != nil {
		return Credential{}, apperrors.Token(err)
	}
	if tok == nil || tok.Name == "" {
		return Credential{}, apperrors.Token(nil).WithMetadata("reason", "empty token")
	}
	return Credential{Name: tok.Name, ExpireTime: expire, NewSessionExpireTime: newSession}, nil
}
