package scheduler

import (
	"math"
	"testing"
	"time"
)

func TestSortEntries(t *testing.T) {
	entries := []Entry{
		lesson(func(e *Entry) { e.Subject = "C"; e.Day = time.Wednesday }),
		lesson(func(e *Entry) { e.Subject = "B"; e.Start = 11 * 60; e.End = 12 * 60 }),
		lesson(func(e *Entry) { e.Subject = "A" }),
	}

	sorted := SortEntries(entries)

	want := []string{"A", "B", "C"}
	for i, subject := range want {
		if sorted[i].Subject != subject {
			t.Fatalf("position %d: expected %s, got %s", i, subject, sorted[i].Subject)
		}
	}
	if entries[0].Subject != "C" {
		t.Fatal("input slice must not be mutated")
	}
}

func TestSortEntriesIsStable(t *testing.T) {
	entries := []Entry{
		lesson(func(e *Entry) { e.Subject = "first" }),
		lesson(func(e *Entry) { e.Subject = "second" }),
	}

	sorted := SortEntries(entries)
	if sorted[0].Subject != "first" || sorted[1].Subject != "second" {
		t.Fatalf("equal keys must keep input order, got %s then %s", sorted[0].Subject, sorted[1].Subject)
	}
}

func TestCountWindows(t *testing.T) {
	t.Run("gap above threshold counts", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Start = 10*60 + 30; e.End = 11*60 + 30 }),
		}
		if got := CountWindows(entries); got != 1 {
			t.Fatalf("expected 1 window, got %d", got)
		}
	})

	t.Run("gap at threshold does not count", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Start = 10*60 + WindowThresholdMinutes; e.End = 11 * 60 }),
		}
		if got := CountWindows(entries); got != 0 {
			t.Fatalf("expected no windows, got %d", got)
		}
	})

	t.Run("gaps are counted per day", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Start = 11 * 60; e.End = 12 * 60 }),
			lesson(func(e *Entry) { e.Day = time.Tuesday }),
			lesson(func(e *Entry) { e.Day = time.Tuesday; e.Start = 13 * 60; e.End = 14 * 60 }),
		}
		if got := CountWindows(entries); got != 2 {
			t.Fatalf("expected 2 windows, got %d", got)
		}
	})

	t.Run("overlapping entries produce no window", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Start = 9*60 + 30; e.End = 10*60 + 30 }),
		}
		if got := CountWindows(entries); got != 0 {
			t.Fatalf("expected no windows, got %d", got)
		}
	})
}

func TestLoadBalanceScore(t *testing.T) {
	t.Run("empty schedule scores perfectly", func(t *testing.T) {
		if got := LoadBalanceScore(nil); got != 100 {
			t.Fatalf("expected 100, got %f", got)
		}
	})

	t.Run("even distribution scores perfectly", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Day = time.Tuesday }),
			lesson(func(e *Entry) { e.Day = time.Wednesday }),
		}
		if got := LoadBalanceScore(entries); got != 100 {
			t.Fatalf("expected 100, got %f", got)
		}
	})

	t.Run("uneven distribution is penalized", func(t *testing.T) {
		entries := []Entry{
			lesson(),
			lesson(func(e *Entry) { e.Start = 11 * 60; e.End = 12 * 60 }),
			lesson(func(e *Entry) { e.Start = 13 * 60; e.End = 14 * 60 }),
			lesson(func(e *Entry) { e.Day = time.Tuesday }),
		}

		// Counts 3 and 1: mean 2, stddev 1, score 90.
		got := LoadBalanceScore(entries)
		if math.Abs(got-90) > 1e-9 {
			t.Fatalf("expected 90, got %f", got)
		}
	})

	t.Run("score never drops below zero", func(t *testing.T) {
		var entries []Entry
		for i := 0; i < 25; i++ {
			entries = append(entries, lesson(func(e *Entry) { e.Start = 8*60 + i; e.End = 8*60 + i + 1 }))
		}
		entries = append(entries, lesson(func(e *Entry) { e.Day = time.Tuesday }))

		if got := LoadBalanceScore(entries); got < 0 {
			t.Fatalf("score must be clamped at zero, got %f", got)
		}
	})
}
