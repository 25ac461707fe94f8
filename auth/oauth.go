package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/samsaffron/oauth-codex/credentials"
)

const (
	// DefaultIssuer is the ChatGPT identity provider.
	DefaultIssuer = "https://auth.openai.com"
	// DefaultClientID is the public client registered for the Codex CLI flow.
	DefaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
	// DefaultRedirectURL is the loopback callback the provider allows for
	// this client.
	DefaultRedirectURL = "http://localhost:1455/auth/callback"
)

// Environment overrides, mainly for tests and self-hosted gateways.
const (
	EnvIssuer      = "CODEX_OAUTH_ISSUER"
	EnvClientID    = "CODEX_OAUTH_CLIENT_ID"
	EnvRedirectURL = "CODEX_OAUTH_REDIRECT_URL"
)

// Endpoints are the provider URLs the flow talks to.
type Endpoints struct {
	AuthorizationURL string
	TokenURL         string
}

// Flow drives the PKCE authorization-code flow against the provider.
type Flow struct {
	Issuer      string
	ClientID    string
	RedirectURL string
	HTTPClient  *http.Client

	endpoints *Endpoints
}

// NewFlow builds a flow from the defaults plus any environment overrides.
func NewFlow() *Flow {
	f := &Flow{
		Issuer:      DefaultIssuer,
		ClientID:    DefaultClientID,
		RedirectURL: DefaultRedirectURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
	if v := os.Getenv(EnvIssuer); v != "" {
		f.Issuer = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		f.ClientID = v
	}
	if v := os.Getenv(EnvRedirectURL); v != "" {
		f.RedirectURL = v
	}
	return f
}

// DiscoverEndpoints fetches the OpenID configuration document. Discovery
// is best-effort: any failure falls back to the conventional paths under
// the issuer.
func (f *Flow) DiscoverEndpoints(ctx context.Context) *Endpoints {
	if f.endpoints != nil {
		return f.endpoints
	}
	fallback := &Endpoints{
		AuthorizationURL: f.Issuer + "/oauth/authorize",
		TokenURL:         f.Issuer + "/oauth/token",
	}
	f.endpoints = fallback

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return fallback
	}
	resp, err := f.httpClient().Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fallback
	}
	var doc struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return fallback
	}
	if doc.AuthorizationEndpoint != "" {
		f.endpoints.AuthorizationURL = doc.AuthorizationEndpoint
	}
	if doc.TokenEndpoint != "" {
		f.endpoints.TokenURL = doc.TokenEndpoint
	}
	return f.endpoints
}

func (f *Flow) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Flow) oauthConfig(ctx context.Context) *oauth2.Config {
	eps := f.DiscoverEndpoints(ctx)
	return &oauth2.Config{
		ClientID:    f.ClientID,
		RedirectURL: f.RedirectURL,
		Scopes:      []string{"openid", "profile", "email", "offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  eps.AuthorizationURL,
			TokenURL: eps.TokenURL,
		},
	}
}

// AuthorizeURL builds the browser URL for the given PKCE pair and state.
func (f *Flow) AuthorizeURL(ctx context.Context, pkce *PKCE, state string) string {
	return f.oauthConfig(ctx).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
		oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
	)
}

// ParseCallback extracts the authorization code from a callback URL,
// checking the state parameter against the one issued with the
// authorize URL.
func ParseCallback(raw string, wantState string) (code string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = e
		}
		return "", fmt.Errorf("authorization failed: %s", desc)
	}
	if got := q.Get("state"); got != wantState {
		return "", fmt.Errorf("state mismatch in callback")
	}
	code = q.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback missing authorization code")
	}
	return code, nil
}

// Exchange trades an authorization code for credentials, resolving the
// account id from the ID token.
func (f *Flow) Exchange(ctx context.Context, code string, pkce *PKCE) (*credentials.Credentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient())
	tok, err := f.oauthConfig(ctx).Exchange(ctx, code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	creds := &credentials.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		creds.IDToken = idToken
		if claims, err := ParseClaims(idToken); err == nil {
			creds.AccountID = claims.AccountID
		}
	}
	if creds.AccountID == "" {
		if claims, err := ParseClaims(tok.AccessToken); err == nil {
			creds.AccountID = claims.AccountID
		}
	}
	return creds, nil
}

// RefreshError reports a failed refresh. Permanent means the refresh
// token itself was rejected and a new login is required.
type RefreshError struct {
	Code      string
	Message   string
	Permanent bool
}

func (e *RefreshError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token refresh failed (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("token refresh failed: %s", e.Message)
}

func permanentRefreshCode(code string) bool {
	switch code {
	case "invalid_grant", "invalid_client", "unauthorized_client", "revoked":
		return true
	}
	return false
}

// Refresh exchanges a refresh token for a new access token. The token
// endpoint takes a JSON body for this grant rather than form encoding.
// A rotated refresh token replaces the old one.
func (f *Flow) Refresh(ctx context.Context, creds *credentials.Credentials) (*credentials.Credentials, error) {
	if creds == nil || creds.RefreshToken == "" {
		return nil, &RefreshError{Message: "no refresh token available", Permanent: true}
	}
	body, err := json.Marshal(map[string]string{
		"client_id":     f.ClientID,
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"scope":         "openid profile email",
	})
	if err != nil {
		return nil, fmt.Errorf("encode refresh request: %w", err)
	}
	eps := f.DiscoverEndpoints(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eps.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, &RefreshError{Message: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RefreshError{Message: fmt.Sprintf("read refresh response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(data, &oauthErr)
		msg := oauthErr.ErrorDescription
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &RefreshError{
			Code:      oauthErr.Error,
			Message:   msg,
			Permanent: permanentRefreshCode(oauthErr.Error),
		}
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, &RefreshError{Message: fmt.Sprintf("decode refresh response: %v", err)}
	}
	if tok.AccessToken == "" {
		return nil, &RefreshError{Message: "refresh response missing access_token"}
	}

	next := &credentials.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: creds.RefreshToken,
		IDToken:      creds.IDToken,
		AccountID:    creds.AccountID,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.IDToken != "" {
		next.IDToken = tok.IDToken
	}
	if tok.ExpiresIn > 0 {
		next.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if next.AccountID == "" {
		if claims, err := ParseClaims(next.AccessToken); err == nil {
			next.AccountID = claims.AccountID
		}
	}
	return next, nil
}
