package harness

import (
	"fmt"
	"slices"
)

// checkResolve compares a resolve query against its expectations. Values
// are compared in stamp order.
func checkResolve(label string, want *Expect, state string, values []string, result *Result) {
	if want.State != "" && want.State != state {
		result.AddError(fmt.Sprintf("%s: state = %s, want %s", label, state, want.State))
	}
	if want.Values != nil && !slices.Equal(want.Values, values) {
		result.AddError(fmt.Sprintf("%s: values = %q, want %q", label, values, want.Values))
	}
}

// checkTaxonomy compares a taxonomy query against its expectations.
// Parents must each be present; Orphans must match exactly.
func checkTaxonomy(label string, want *Expect, edges, orphans []string, cycles int, result *Result) {
	if want.Edges != nil && *want.Edges != len(edges) {
		result.AddError(fmt.Sprintf("%s: %d edge(s), want %d", label, len(edges), *want.Edges))
	}
	if want.Cycles != nil && *want.Cycles != cycles {
		result.AddError(fmt.Sprintf("%s: %d cycle(s), want %d", label, cycles, *want.Cycles))
	}
	for _, p := range want.Parents {
		if !slices.Contains(edges, p) {
			result.AddError(fmt.Sprintf("%s: missing edge %q", label, p))
		}
	}
	if want.Orphans != nil {
		expected := slices.Clone(want.Orphans)
		slices.Sort(expected)
		if !slices.Equal(expected, orphans) {
			result.AddError(fmt.Sprintf("%s: orphans = %q, want %q", label, orphans, expected))
		}
	}
}
