package codex

// Usage is normalized token accounting for a response. CachedTokens and
// CachedInputTokens are aliases kept in sync: different consumers grew
// up reading different names for the same number.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	TotalTokens       int `json:"total_tokens"`
	CachedTokens      int `json:"cached_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
	ReasoningTokens   int `json:"reasoning_tokens"`
}

// Add accumulates other into u, keeping the cached aliases in sync.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CachedTokens += other.cached()
	u.CachedInputTokens = u.CachedTokens
	u.ReasoningTokens += other.ReasoningTokens
}

func (u Usage) cached() int {
	if u.CachedTokens != 0 {
		return u.CachedTokens
	}
	return u.CachedInputTokens
}

// wireUsage is the raw usage block from the Responses API.
type wireUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

func (w wireUsage) normalize() Usage {
	total := w.TotalTokens
	if total == 0 {
		total = w.InputTokens + w.OutputTokens
	}
	return Usage{
		InputTokens:       w.InputTokens,
		OutputTokens:      w.OutputTokens,
		TotalTokens:       total,
		CachedTokens:      w.InputTokensDetails.CachedTokens,
		CachedInputTokens: w.InputTokensDetails.CachedTokens,
		ReasoningTokens:   w.OutputTokensDetails.ReasoningTokens,
	}
}
