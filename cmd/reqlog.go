package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/samsaffron/oauth-codex/codex"
	"github.com/samsaffron/oauth-codex/internal/reqlog"
)

// requestLogHooks opens the SQLite request log and returns hooks that
// record each request plus its eventual usage.
func requestLogHooks() (codex.Hooks, func(), error) {
	path, err := reqlog.DefaultPath()
	if err != nil {
		return codex.Hooks{}, nil, err
	}
	store, err := reqlog.Open(path)
	if err != nil {
		return codex.Hooks{}, nil, err
	}

	var mu sync.Mutex
	pending := make(map[string]*reqlog.Entry)
	var lastID string

	hooks := codex.Hooks{
		OnRequest: func(info codex.RequestInfo) {
			mu.Lock()
			defer mu.Unlock()
			lastID = info.RequestID
			if _, ok := pending[info.RequestID]; !ok {
				pending[info.RequestID] = &reqlog.Entry{
					ID:        info.RequestID,
					CreatedAt: time.Now(),
					Method:    info.Method,
					Path:      info.Path,
					Model:     viper.GetString("model"),
				}
			}
		},
		OnResponse: func(info codex.ResponseInfo) {
			mu.Lock()
			entry, ok := pending[info.RequestID]
			if ok {
				entry.Status = info.StatusCode
				entry.Duration = info.Duration
			}
			mu.Unlock()
			if ok {
				_ = store.Record(context.Background(), *entry)
			}
		},
		OnStreamEvent: func(event codex.Event) {
			if event.Type != codex.EventUsage || event.Usage == nil {
				return
			}
			mu.Lock()
			entry, ok := pending[lastID]
			if ok {
				entry.InputTokens += event.Usage.InputTokens
				entry.OutputTokens += event.Usage.OutputTokens
				entry.CachedTokens += event.Usage.CachedTokens
			}
			mu.Unlock()
			if ok {
				_ = store.Record(context.Background(), *entry)
			}
		},
	}
	return hooks, func() { store.Close() }, nil
}
