package llm

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at         time.Time
	durationMs int64
}

// StatsSnapshot aggregates the completion calls seen inside the window,
// plus lifetime token totals.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Stats tracks completion latency over a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration

	promptTokens     int64
	completionTokens int64
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 128),
		window:  window,
	}
}

func (s *Stats) Record(durationMs int64) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(now)
	s.samples = append(s.samples, sample{at: now, durationMs: max(durationMs, 0)})
}

func (s *Stats) RecordTokens(prompt, completion int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptTokens += int64(prompt)
	s.completionTokens += int64(completion)
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(now)
	snap := StatsSnapshot{
		PromptTokens:     s.promptTokens,
		CompletionTokens: s.completionTokens,
	}
	if len(s.samples) == 0 {
		return snap
	}

	durations := make([]int64, len(s.samples))
	var total int64
	for i, sm := range s.samples {
		durations[i] = sm.durationMs
		total += sm.durationMs
	}
	slices.Sort(durations)

	snap.Count = len(durations)
	snap.MinMs = durations[0]
	snap.MaxMs = durations[len(durations)-1]
	snap.AvgMs = float64(total) / float64(len(durations))
	snap.P50Ms = percentile(durations, 50)
	snap.P95Ms = percentile(durations, 95)
	snap.P99Ms = percentile(durations, 99)
	return snap
}

func (s *Stats) dropExpiredLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[n-1])
	}

	rank := float64(n-1) * pct / 100
	lo := int(rank)
	if lo+1 >= n {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
