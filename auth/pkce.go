package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCE holds a verifier/challenge pair for the S256 code flow.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier from 64 random bytes and its S256
// challenge. The base64url encoding keeps the verifier inside the
// 43-128 character window RFC 7636 requires.
func NewPKCE() (*PKCE, error) {
	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return &PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// NewState generates the opaque state parameter for an authorize URL.
func NewState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
