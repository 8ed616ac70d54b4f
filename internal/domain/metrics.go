package domain

import "math"

// RunMetrics aggregates token usage and timing for a run. Token counts
// are cumulative totals, not deltas; timing fields stay nil until the
// worker reports them.
type RunMetrics struct {
	PromptTokens        int64  `json:"prompt_tokens"`
	CompletionTokens    int64  `json:"completion_tokens"`
	TotalTokens         int64  `json:"total_tokens"`
	FirstTokenMS        *int64 `json:"first_token_ms"`
	LLMDurationMS       *int64 `json:"llm_duration_ms"`
	ExecutionDurationMS *int64 `json:"execution_duration_ms"`
	EndToEndMS          *int64 `json:"end_to_end_ms"`
}

// TokenUsagePatch carries partial token counters from a worker update.
type TokenUsagePatch struct {
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
	TotalTokens      *int64 `json:"total_tokens"`
}

// TimingPatch carries partial timing measurements from a worker update.
type TimingPatch struct {
	FirstTokenMS        *int64 `json:"first_token_ms"`
	LLMDurationMS       *int64 `json:"llm_duration_ms"`
	ExecutionDurationMS *int64 `json:"execution_duration_ms"`
	EndToEndMS          *int64 `json:"end_to_end_ms"`
}

// Merge folds a partial update into the metrics. Whenever a usage patch
// is present the total is recomputed: an explicit total wins, otherwise
// it becomes prompt+completion with saturation. Timing fields patch
// individually and never reset to nil.
func (m *RunMetrics) Merge(usage *TokenUsagePatch, timing *TimingPatch) {
	if usage != nil {
		if usage.PromptTokens != nil {
			m.PromptTokens = *usage.PromptTokens
		}
		if usage.CompletionTokens != nil {
			m.CompletionTokens = *usage.CompletionTokens
		}
		if usage.TotalTokens != nil {
			m.TotalTokens = *usage.TotalTokens
		} else {
			m.TotalTokens = saturatingAdd(m.PromptTokens, m.CompletionTokens)
		}
	}
	if timing != nil {
		if timing.FirstTokenMS != nil {
			m.FirstTokenMS = timing.FirstTokenMS
		}
		if timing.LLMDurationMS != nil {
			m.LLMDurationMS = timing.LLMDurationMS
		}
		if timing.ExecutionDurationMS != nil {
			m.ExecutionDurationMS = timing.ExecutionDurationMS
		}
		if timing.EndToEndMS != nil {
			m.EndToEndMS = timing.EndToEndMS
		}
	}
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if a > 0 && b > 0 && sum < 0 {
		return math.MaxInt64
	}
	return sum
}
