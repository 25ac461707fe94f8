package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/samsaffron/oauth-codex/credentials"
)

// LoginResult is delivered once the browser completes the flow.
type LoginResult struct {
	Credentials *credentials.Credentials
	Err         error
}

// Login runs the full interactive flow: it starts a loopback server on
// the redirect address, hands the authorize URL to openURL (typically a
// browser launcher or a printer), waits for the callback and exchanges
// the code. It blocks until the flow completes, ctx is done, or the
// server fails to start.
func (f *Flow) Login(ctx context.Context, openURL func(url string) error) (*credentials.Credentials, error) {
	pkce, err := NewPKCE()
	if err != nil {
		return nil, err
	}
	state, err := NewState()
	if err != nil {
		return nil, err
	}

	redirect, err := url.Parse(f.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}

	results := make(chan LoginResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		code, err := ParseCallback(r.URL.String(), state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			results <- LoginResult{Err: err}
			return
		}
		creds, err := f.Exchange(r.Context(), code, pkce)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			results <- LoginResult{Err: err}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Login complete. You can close this tab.</p></body></html>")
		results <- LoginResult{Credentials: creds}
	})

	server := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := openURL(f.AuthorizeURL(ctx, pkce, state)); err != nil {
		return nil, fmt.Errorf("open authorize url: %w", err)
	}

	select {
	case res := <-results:
		return res.Credentials, res.Err
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
