package telemetry

import (
	"log"
	"sync/atomic"
)

// Counter is a monotonically increasing, thread-safe counter used to
// report job progress.
type Counter struct {
	name  string
	value int64
}

// NewCounter creates a named counter starting at zero.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Add increments the counter by delta and returns its new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}

// Value returns the counter's current value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Statusln logs a status line tagged with the reporting rank.
func Statusln(rank int, a ...any) {
	log.Println(append([]any{"rank", rank, ":"}, a...)...)
}

// ProgressTicker reports doubling-threshold progress — 10%, 20%, 40%,
// 80% — and only on rank 0 thread 0, so progress output isn't
// duplicated per rank or per thread.
type ProgressTicker struct {
	total     int64
	thresh    []float64
	next      int
	isReporter bool
}

// NewProgressTicker creates a ticker over total units of work. reporter
// should be true only for rank 0, thread 0 — every other caller gets a
// ticker that silently no-ops on every Tick call.
func NewProgressTicker(total int64, reporter bool) *ProgressTicker {
	return &ProgressTicker{
		total:      total,
		thresh:     []float64{0.10, 0.20, 0.40, 0.80},
		isReporter: reporter,
	}
}

// Tick reports progress if done/total has crossed the next doubling
// threshold. Progress beyond 80% is intentionally not reported.
func (p *ProgressTicker) Tick(done int64) {
	if !p.isReporter || p.total <= 0 || p.next >= len(p.thresh) {
		return
	}
	frac := float64(done) / float64(p.total)
	for p.next < len(p.thresh) && frac >= p.thresh[p.next] {
		log.Printf("mapreduce progress: %.0f%% (%d/%d)", p.thresh[p.next]*100, done, p.total)
		p.next++
	}
}
