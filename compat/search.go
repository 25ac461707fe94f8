package compat

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// tokenize case-folds text into its set of word tokens.
func tokenize(text string) map[string]bool {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// SearchContent is one content block of a search result.
type SearchContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SearchResult is one scored file.
type SearchResult struct {
	ID       string          `json:"id"`
	FileID   string          `json:"file_id"`
	Filename string          `json:"filename"`
	Score    float64         `json:"score"`
	Content  []SearchContent `json:"content"`
}

// SearchPage mirrors the hosted vector-store search response.
type SearchPage struct {
	Object      string         `json:"object"`
	SearchQuery string         `json:"search_query"`
	Data        []SearchResult `json:"data"`
	HasMore     bool           `json:"has_more"`
}

// SearchVectorStore scores each attached file by token overlap with
// the query: shared tokens divided by the number of query tokens.
// Files with no overlap are dropped; results sort by score descending
// with file id as the tie break.
func (s *Store) SearchVectorStore(vectorStoreID, query string, maxNumResults int) (*SearchPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, err := s.retrieveVectorStoreLocked(vectorStoreID)
	if err != nil {
		return nil, err
	}

	page := &SearchPage{
		Object:      "vector_store.search_results.page",
		SearchQuery: query,
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return page, nil
	}

	for _, fileID := range vs.FileIDs {
		file, err := s.getFileLocked(fileID)
		if err != nil {
			continue
		}
		content, err := s.readBlobLocked(fileID)
		if err != nil {
			continue
		}
		text := string(content)
		fileTokens := tokenize(text)
		overlap := 0
		for tok := range queryTokens {
			if fileTokens[tok] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		page.Data = append(page.Data, SearchResult{
			ID:       newID("vsr"),
			FileID:   fileID,
			Filename: file.Filename,
			Score:    float64(overlap) / float64(len(queryTokens)),
			Content:  []SearchContent{{Type: "text", Text: text}},
		})
	}

	sort.SliceStable(page.Data, func(i, j int) bool {
		if page.Data[i].Score != page.Data[j].Score {
			return page.Data[i].Score > page.Data[j].Score
		}
		return page.Data[i].FileID < page.Data[j].FileID
	})

	if maxNumResults > 0 && len(page.Data) > maxNumResults {
		page.Data = page.Data[:maxNumResults]
		page.HasMore = true
	}
	return page, nil
}

func (s *Store) readBlobLocked(fileID string) ([]byte, error) {
	return os.ReadFile(s.blobPath(fileID))
}
