package codex

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samsaffron/oauth-codex/auth"
	"github.com/samsaffron/oauth-codex/credentials"
)

// testRefreshServer fakes the identity provider token endpoint.
type testRefreshServer struct {
	*httptest.Server
	mu       sync.Mutex
	calls    int
	failWith int // respond with this status when non-zero
}

func newTestRefreshServer(t *testing.T) *testRefreshServer {
	t.Helper()
	s := &testRefreshServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls++
		fail := s.failWith
		n := s.calls
		s.mu.Unlock()
		if fail != 0 {
			w.WriteHeader(fail)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("refreshed-%d", n),
			"expires_in":   3600,
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *testRefreshServer) refreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testEnv struct {
	client    *Client
	api       *httptest.Server
	refresh   *testRefreshServer
	tokenPath string
	sleeps    []time.Duration
}

// newTestEnv wires a client against an API handler and a fake refresh
// endpoint, with stored credentials and no real sleeping.
func newTestEnv(t *testing.T, handler http.Handler, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.api = httptest.NewServer(handler)
	t.Cleanup(env.api.Close)
	env.refresh = newTestRefreshServer(t)

	dir := t.TempDir()
	env.tokenPath = filepath.Join(dir, "auth.json")
	store := &credentials.FileStore{Path: env.tokenPath}
	if err := store.Save(&credentials.Credentials{
		AccessToken:  "valid-token",
		RefreshToken: "refresh-token",
		AccountID:    "acct_test",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	opts.BaseURL = env.api.URL
	opts.TokenStore = store
	opts.CompatDir = filepath.Join(dir, "compat")
	opts.Flow = &auth.Flow{
		Issuer:     env.refresh.URL,
		ClientID:   "client-test",
		HTTPClient: env.refresh.Client(),
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}

	client, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	client.engine.sleep = func(d time.Duration) {
		env.sleeps = append(env.sleeps, d)
	}
	env.client = client
	return env
}

// sseHandler responds to /responses with a canned SSE body.
func sseHandler(body func(r *http.Request, requestBody []byte) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body(r, payload))
	})
}

// textResponseSSE is a minimal successful stream producing text.
func textResponseSSE(id, text string) string {
	return fmt.Sprintf("event: response.output_text.delta\ndata: {\"delta\":%q}\n\n", text) +
		fmt.Sprintf("event: response.completed\ndata: {\"response\":{\"id\":%q,\"output\":[{\"type\":\"message\",\"id\":\"msg_1\",\"role\":\"assistant\",\"content\":[{\"type\":\"output_text\",\"text\":%q}]}],\"usage\":{\"input_tokens\":5,\"output_tokens\":2,\"total_tokens\":7}}}\n\n", id, text) +
		"data: [DONE]\n\n"
}

func drainToResponse(t *testing.T, stream Stream) *Response {
	t.Helper()
	defer stream.Close()
	for {
		event, err := stream.Recv()
		if err != nil {
			t.Fatal("stream ended without done event")
		}
		switch event.Type {
		case EventError:
			t.Fatalf("stream error: %v", event.Err)
		case EventDone:
			return event.Response
		}
	}
}
