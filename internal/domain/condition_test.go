package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEvaluateCondition(t *testing.T) {
	ctx := map[string]string{
		"review.result": "fail",
		"empty":         "",
	}

	cases := []struct {
		name string
		cond string
		want bool
	}{
		{"bare value", "review.result == fail", true},
		{"single quotes", "review.result == 'fail'", true},
		{"double quotes", `review.result == "fail"`, true},
		{"no spaces", "review.result=='fail'", true},
		{"mismatch", "review.result == 'pass'", false},
		{"missing key", "build.result == 'ok'", false},
		{"missing key empty expected", "absent == ''", false},
		{"empty value present", "empty == ''", true},
		{"no operator", "review.result", false},
		{"empty condition", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, EvaluateCondition(tc.cond, ctx))
		})
	}
}

func TestEvaluateCondition_QuotedEqualityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z][a-z0-9_.]{0,20}`).Draw(t, "key")
		val := rapid.StringMatching(`[^'"]*`).Draw(t, "val")
		quote := "'"
		if rapid.Bool().Draw(t, "doubleQuote") {
			quote = `"`
		}
		cond := key + " == " + quote + val + quote
		ctx := map[string]string{key: val}

		require.True(t, EvaluateCondition(cond, ctx))
		require.False(t, EvaluateCondition(cond, map[string]string{}),
			"a missing key never matches")

		other := rapid.StringMatching(`[^'"]*`).Draw(t, "other")
		if other != val {
			require.False(t, EvaluateCondition(key+" == "+quote+other+quote, ctx))
		}
	})
}
