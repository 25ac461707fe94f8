package compat

import (
	"strings"
	"testing"
)

func TestSearchScoring(t *testing.T) {
	store := newTestStore(t)

	full, _ := store.CreateFile("full.txt", []byte("the quick brown fox"), "assistants")
	partial, _ := store.CreateFile("partial.txt", []byte("a quick nap"), "assistants")
	_, _ = store.CreateFile("none.txt", []byte("unrelated content"), "assistants")
	vs, _ := store.CreateVectorStore("kb", []string{full.ID, partial.ID})

	none, _ := store.CreateFile("miss.txt", []byte("zzz"), "assistants")
	ids := []string{full.ID, partial.ID, none.ID}
	vs, err := store.UpdateVectorStore(vs.ID, VectorStoreUpdate{FileIDs: &ids})
	if err != nil {
		t.Fatal(err)
	}

	page, err := store.SearchVectorStore(vs.ID, "Quick Brown", 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Object != "vector_store.search_results.page" || page.SearchQuery != "Quick Brown" {
		t.Errorf("page = %+v", page)
	}
	if len(page.Data) != 2 {
		t.Fatalf("results = %+v", page.Data)
	}
	if page.Data[0].FileID != full.ID || page.Data[0].Score != 1.0 {
		t.Errorf("top result = %+v", page.Data[0])
	}
	if page.Data[1].FileID != partial.ID || page.Data[1].Score != 0.5 {
		t.Errorf("second result = %+v", page.Data[1])
	}
	if !strings.HasPrefix(page.Data[0].ID, "vsr_") {
		t.Errorf("result id = %q", page.Data[0].ID)
	}
	if page.Data[0].Content[0].Text != "the quick brown fox" {
		t.Errorf("content = %+v", page.Data[0].Content)
	}
	if page.HasMore {
		t.Error("has_more should be false without truncation")
	}
}

func TestSearchTieBreakAndTruncation(t *testing.T) {
	store := newTestStore(t)

	a, _ := store.CreateFile("a.txt", []byte("term"), "assistants")
	b, _ := store.CreateFile("b.txt", []byte("term"), "assistants")
	vs, _ := store.CreateVectorStore("kb", []string{b.ID, a.ID})

	page, err := store.SearchVectorStore(vs.ID, "term", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 {
		t.Fatalf("results = %+v", page.Data)
	}
	// Equal scores fall back to file id order.
	wantFirst := a.ID
	if b.ID < a.ID {
		wantFirst = b.ID
	}
	if page.Data[0].FileID != wantFirst {
		t.Errorf("first = %q, want %q", page.Data[0].FileID, wantFirst)
	}
	if !page.HasMore {
		t.Error("has_more should be true after truncation")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	store := newTestStore(t)

	f, _ := store.CreateFile("a.txt", []byte("term"), "assistants")
	vs, _ := store.CreateVectorStore("kb", []string{f.ID})

	page, err := store.SearchVectorStore(vs.ID, "  ... !!", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 0 || page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchCaseFoldsAndKeepsUnderscores(t *testing.T) {
	store := newTestStore(t)

	f, _ := store.CreateFile("code.txt", []byte("call MAX_RETRIES before retry"), "assistants")
	vs, _ := store.CreateVectorStore("kb", []string{f.ID})

	page, err := store.SearchVectorStore(vs.ID, "max_retries", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || page.Data[0].Score != 1.0 {
		t.Errorf("page = %+v", page.Data)
	}
}

func TestSearchUnknownVectorStore(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SearchVectorStore("vs_missing", "q", 0); err == nil {
		t.Fatal("expected not found")
	}
}
