package classifier

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  Route
	}{
		{"table keyword alone", "show me the table of variable costs", SQLOnly},
		{"table plus semantic", "explain the table of variable costs", Hybrid},
		{"semantic plus metric", "why did revenue change in Q2", Hybrid},
		{"semantic plus temporal", "explain what happened last quarter", Hybrid},
		{"semantic plus numeric", "why did costs increase by 12%", Hybrid},
		{"semantic only", "describe the company's strategy", VectorOnly},
		{"metric and temporal", "revenue Q2 2024", SQLOnly},
		{"precision metric temporal", "exact revenue for Q2 2024", SQLOnly},
		{"vague fallback", "tell me something interesting", Hybrid},
		{"numeric only, no metric or temporal", "what is 42", Hybrid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.query)
			if got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.query, got, tc.want)
			}
		})
	}
}

func TestClassifyNeverDefaultsToVectorOnly(t *testing.T) {
	// Regression guard for the documented rationale: the safe default for
	// an unrecognized query shape is HYBRID, never VECTOR_ONLY.
	got := Classify("asdkjf qweoiu zzz")
	if got == VectorOnly {
		t.Errorf("unrecognized query must not default to VECTOR_ONLY, got %s", got)
	}
}
