// Package token issues and fetches short-lived, single-use Live credentials
package token

import (
	"context"
	"time"
)

// Credential is an ephemeral token scoped to one session start. Name is the
// opaque value presented to the Live endpoint.
type Credential struct {
	Name                 string    `json:"name"`
	ExpireTime           time.Time `json:"expireTime,omitzero"`
	NewSessionExpireTime time.Time `json:"newSessionExpireTime,omitzero"`
}

// Response is the credential endpoint's body.
type Response struct {
	Token Credential `json:"token"`
}

// Source yields a fresh credential for every session.
type Source interface {
	Fetch(ctx context.Context) (Credential, error)
}

// Static always returns the same credential. Useful against local fakes of
// the Live endpoint, which do not check tokens.
type Static string

// Fetch implements Source.
func (s Static) Fetch(context.Context) (Credential, error) {
	return Credential{Name: string(s)}, nil
}
