package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/resilience"
)

const maxBodyBytes = 64 << 10

// Client fetches credentials from the credential endpoint.
type Client struct {
	url    string
	http   *http.Client
	policy resilience.Policy
}

// NewClient creates a client for url. A nil breaker disables fail-fast.
func NewClient(url string, timeout time.Duration, breaker *resilience.Breaker) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		policy: resilience.TokenPolicy(breaker),
	}
}

// Fetch implements Source. Server errors and timeouts are retried; anything
// else fails the connect attempt immediately.
func (c *Client) Fetch(ctx context.Context) (Credential, error) {
	cred, err := resilience.Call(ctx, c.policy, c.fetchOnce)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeTokenFailed) {
			return Credential{}, err
		}
		return Credential{}, apperrors.Token(err)
	}
	return cred, nil
}

func (c *Client) fetchOnce(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Credential{}, apperrors.Token(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Credential{}, ctx.Err()
		}
		return Credential{}, apperrors.Wrap(err, apperrors.CodeUnavailable, "credential endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Credential{}, apperrors.Wrap(err, apperrors.CodeUnavailable, "read credential response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return Credential{}, apperrors.Newf(apperrors.CodeUnavailable, "credential endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, apperrors.Token(fmt.Errorf("status %d", resp.StatusCode))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Credential{}, apperrors.Token(err)
	}
	if out.Token.Name == "" {
		return Credential{}, apperrors.Token(nil).WithMetadata("reason", "empty token")
	}
	return out.Token, nil
}
