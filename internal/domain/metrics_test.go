package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func i64(v int64) *int64 { return &v }

func TestRunMetrics_MergeRecomputesTotal(t *testing.T) {
	m := RunMetrics{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}

	m.Merge(&TokenUsagePatch{CompletionTokens: i64(20)}, nil)

	require.Equal(t, int64(10), m.PromptTokens)
	require.Equal(t, int64(20), m.CompletionTokens)
	require.Equal(t, int64(30), m.TotalTokens)
}

func TestRunMetrics_MergeExplicitTotalWins(t *testing.T) {
	m := RunMetrics{PromptTokens: 10, CompletionTokens: 5}

	m.Merge(&TokenUsagePatch{TotalTokens: i64(99)}, nil)

	require.Equal(t, int64(99), m.TotalTokens)
}

func TestRunMetrics_MergeNilPatchesLeaveMetricsAlone(t *testing.T) {
	m := RunMetrics{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3, FirstTokenMS: i64(7)}

	m.Merge(nil, nil)

	require.Equal(t, int64(3), m.TotalTokens)
	require.Equal(t, int64(7), *m.FirstTokenMS)
}

func TestRunMetrics_MergeTimingPatchesIndividually(t *testing.T) {
	m := RunMetrics{FirstTokenMS: i64(100)}

	m.Merge(nil, &TimingPatch{LLMDurationMS: i64(250), EndToEndMS: i64(300)})

	require.Equal(t, int64(100), *m.FirstTokenMS)
	require.Equal(t, int64(250), *m.LLMDurationMS)
	require.Equal(t, int64(300), *m.EndToEndMS)
	require.Nil(t, m.ExecutionDurationMS)
}

func TestRunMetrics_MergeSaturates(t *testing.T) {
	m := RunMetrics{}

	m.Merge(&TokenUsagePatch{PromptTokens: i64(math.MaxInt64), CompletionTokens: i64(1)}, nil)

	require.Equal(t, int64(math.MaxInt64), m.TotalTokens)
}

func TestRunMetrics_MergeTotalProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := RunMetrics{
			PromptTokens:     rapid.Int64Range(0, math.MaxInt64).Draw(t, "prompt0"),
			CompletionTokens: rapid.Int64Range(0, math.MaxInt64).Draw(t, "completion0"),
		}
		patch := &TokenUsagePatch{}
		if rapid.Bool().Draw(t, "patchPrompt") {
			patch.PromptTokens = i64(rapid.Int64Range(0, math.MaxInt64).Draw(t, "prompt"))
		}
		if rapid.Bool().Draw(t, "patchCompletion") {
			patch.CompletionTokens = i64(rapid.Int64Range(0, math.MaxInt64).Draw(t, "completion"))
		}

		m.Merge(patch, nil)

		require.Equal(t, saturatingAdd(m.PromptTokens, m.CompletionTokens), m.TotalTokens)
	})
}
