// Package delta computes membership and population changes between polls.
// All functions are pure; callers own any persistence of the inputs.
package delta

// Population returns the signed change between the newest sample in window
// and current. An empty window yields 0: with nothing to compare against,
// the first observation is not a change.
func Population(window []int, current int) int {
	if len(window) == 0 {
		return 0
	}
	return current - window[len(window)-1]
}

// Sets returns the identifiers present in cur but not prev (joined) and in
// prev but not cur (left). An empty prev yields all of cur as joined.
// The returned sets are always disjoint.
func Sets(prev, cur map[string]struct{}) (joined, left map[string]struct{}) {
	joined = make(map[string]struct{})
	left = make(map[string]struct{})
	for id := range cur {
		if _, ok := prev[id]; !ok {
			joined[id] = struct{}{}
		}
	}
	for id := range prev {
		if _, ok := cur[id]; !ok {
			left[id] = struct{}{}
		}
	}
	return joined, left
}

// ToSet builds a set from a slice of identifiers.
func ToSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
