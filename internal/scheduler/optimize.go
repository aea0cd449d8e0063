package scheduler

import (
	"math"
	"sort"
	"time"
)

// WindowThresholdMinutes is the idle gap between two consecutive same-day
// entries above which the gap counts as a window.
const WindowThresholdMinutes = 15

// SortEntries returns the entries reordered stably by day then start time.
// This is the deterministic transformation applied by the optimizer; the
// input slice is left untouched.
func SortEntries(entries []Entry) []Entry {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Day != ordered[j].Day {
			return ordered[i].Day < ordered[j].Day
		}
		return ordered[i].Start < ordered[j].Start
	})
	return ordered
}

// CountWindows counts, per day, the gaps between consecutive time-sorted
// entries that exceed the window threshold. Overlapping entries contribute no
// window.
func CountWindows(entries []Entry) int {
	byDay := make(map[time.Weekday][]Entry)
	for _, entry := range entries {
		byDay[entry.Day] = append(byDay[entry.Day], entry)
	}

	windows := 0
	for _, day := range byDay {
		sort.SliceStable(day, func(i, j int) bool {
			return day[i].Start < day[j].Start
		})
		for i := 1; i < len(day); i++ {
			if day[i].Start-day[i-1].End > WindowThresholdMinutes {
				windows++
			}
		}
	}
	return windows
}

// LoadBalanceScore grades how evenly entries spread over the days that carry
// any load: max(0, 100 − 10·stddev(perDayEntryCounts)). A schedule confined
// to a single day therefore scores a perfect 100, which matches the metric's
// intent of penalizing uneven days rather than few days.
func LoadBalanceScore(entries []Entry) float64 {
	counts := make(map[time.Weekday]int)
	for _, entry := range entries {
		counts[entry.Day]++
	}
	if len(counts) == 0 {
		return 100
	}

	mean := float64(len(entries)) / float64(len(counts))
	variance := 0.0
	for _, count := range counts {
		diff := float64(count) - mean
		variance += diff * diff
	}
	variance /= float64(len(counts))

	score := 100 - 10*math.Sqrt(variance)
	if score < 0 {
		return 0
	}
	return score
}
