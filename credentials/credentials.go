package credentials

import (
	"time"
)

// Credentials holds the OAuth tokens and account metadata for the
// ChatGPT backend. AccountID is empty until the first token exchange
// resolves it from the ID token.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// DefaultExpiryLeeway is how far ahead of the recorded expiry a token
// is treated as expired, so requests never go out with a token about
// to lapse mid-flight.
const DefaultExpiryLeeway = 60 * time.Second

// IsExpired reports whether the access token is expired or will be
// within leeway. Credentials without a recorded expiry never expire.
func (c *Credentials) IsExpired(leeway time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Add(leeway).Before(c.ExpiresAt)
}
