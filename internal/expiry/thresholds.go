package expiry

import "sort"

// ThresholdSet is the set of exact days-remaining values on which a
// notification is sent.
type ThresholdSet struct {
	days []int // descending, unique
}

// DefaultThresholds returns {90, 60, 30, 15, 7, 1}.
func DefaultThresholds() ThresholdSet {
	return NewThresholdSet(90, 60, 30, 15, 7, 1)
}

// NewThresholdSet builds a set from the given days. Non-positive values and
// duplicates are dropped.
func NewThresholdSet(days ...int) ThresholdSet {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d <= 0 {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return ThresholdSet{days: out}
}

// Days returns the thresholds in descending order.
func (s ThresholdSet) Days() []int {
	return append([]int(nil), s.days...)
}

// Contains reports whether daysRemaining is exactly a threshold.
func (s ThresholdSet) Contains(daysRemaining int) bool {
	for _, d := range s.days {
		if d == daysRemaining {
			return true
		}
	}
	return false
}

// NextNotificationDay returns the largest threshold not above daysRemaining.
func (s ThresholdSet) NextNotificationDay(daysRemaining int) (int, bool) {
	for _, d := range s.days {
		if d <= daysRemaining {
			return d, true
		}
	}
	return 0, false
}
