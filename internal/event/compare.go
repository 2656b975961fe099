package event

import "slices"

// Compare orders events by start, then by end.
func Compare(a, b Event) int {
	if c := a.Start().Compare(b.Start()); c != 0 {
		return c
	}
	return a.End().Compare(b.End())
}

// Sort orders events in place with Compare, keeping the input order of
// ties.
func Sort(events []Event) {
	slices.SortStableFunc(events, Compare)
}
