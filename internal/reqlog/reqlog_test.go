package reqlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "requests.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{ID: "req-1", Method: "POST", Path: "/responses", Status: 200, Model: "gpt-5.2-codex", InputTokens: 100, OutputTokens: 20, Duration: 1200 * time.Millisecond},
		{ID: "req-2", Method: "POST", Path: "/responses", Status: 429, Error: "rate limit exceeded"},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestRecordUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, Entry{ID: "req-1", Method: "POST", Path: "/responses"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, Entry{ID: "req-1", Method: "POST", Path: "/responses", Status: 200, InputTokens: 50, OutputTokens: 10}); err != nil {
		t.Fatal(err)
	}

	totals, err := store.UsageTotals(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if totals.Requests != 1 {
		t.Errorf("expected 1 request after upsert, got %d", totals.Requests)
	}
	if totals.InputTokens != 50 || totals.OutputTokens != 10 {
		t.Errorf("totals mismatch: %+v", totals)
	}
}

func TestUsageTotalsWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := Entry{ID: "req-old", Method: "POST", Path: "/responses", InputTokens: 5, CreatedAt: time.Now().AddDate(0, 0, -30)}
	recent := Entry{ID: "req-new", Method: "POST", Path: "/responses", InputTokens: 7}
	for _, e := range []Entry{old, recent} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	totals, err := store.UsageTotals(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if totals.Requests != 1 || totals.InputTokens != 7 {
		t.Errorf("windowed totals mismatch: %+v", totals)
	}
}
