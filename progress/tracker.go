// Package progress reports the advance of long batch jobs (crawls,
// re-embedding) as a single carriage-return line.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker tracks and reports progress of a batch job. It is safe for
// concurrent use.
type Tracker struct {
	writer         io.Writer
	unit           string
	total          int
	current        int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// New creates a tracker writing to w (typically os.Stderr). A nil w
// discards output. unit names the counted items ("pages", "passages").
// Progress is printed every reportInterval items.
func New(w io.Writer, total, reportInterval int, unit string) *Tracker {
	if w == nil {
		w = io.Discard
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &Tracker{
		writer:         w,
		unit:           unit,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking.
func (p *Tracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.failed = 0
	p.lastReported = 0
}

// SetTotal changes the expected item count, for jobs that learn it late.
func (p *Tracker) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// Increment records delta finished items.
func (p *Tracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(delta, 0)
}

// Fail records delta items that finished unsuccessfully. They count
// towards the total.
func (p *Tracker) Fail(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(delta, delta)
}

func (p *Tracker) advance(delta, failed int) {
	if !p.started {
		return
	}

	p.current += delta
	p.failed += failed
	if p.total > 0 && p.current > p.total {
		p.current = p.total
	}

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final line.
func (p *Tracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Current returns the finished and failed counts.
func (p *Tracker) Current() (done, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.failed
}

// Elapsed returns the time since Start.
func (p *Tracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *Tracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f %s/s",
		p.current, p.total, percentage, rate, p.unit)
	if p.failed > 0 {
		fmt.Fprintf(p.writer, " - %d failed", p.failed)
	}
}
