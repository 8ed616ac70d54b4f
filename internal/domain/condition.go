package domain

import "strings"

// EvaluateCondition decides whether a conditional step should run.
// Conditions have the form "key == value"; the value may be wrapped in
// single or double quotes. Malformed conditions and missing keys both
// evaluate to false.
func EvaluateCondition(cond string, ctx map[string]string) bool {
	parts := strings.SplitN(cond, "==", 2)
	if len(parts) != 2 {
		return false
	}
	key := strings.TrimSpace(parts[0])
	expected := strings.TrimSpace(parts[1])
	expected = strings.Trim(expected, "'")
	expected = strings.Trim(expected, `"`)
	actual, ok := ctx[key]
	return ok && actual == expected
}
