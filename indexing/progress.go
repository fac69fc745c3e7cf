package indexing

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress prints a single self-overwriting status line for a long load.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	every    int
	done     int
	reported int
	start    time.Time
}

// NewProgress reports to w every time at least every more chunks have been
// added; every < 1 reports on each Add.
func NewProgress(w io.Writer, total, every int) *Progress {
	return &Progress{w: w, total: total, every: max(every, 1), start: time.Now()}
}

// Add records n more chunks, capped at the total.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = min(p.done+n, p.total)
	if p.done-p.reported >= p.every {
		p.print()
		p.reported = p.done
	}
}

// Done prints the final line, whatever was actually completed, and a newline.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print()
	fmt.Fprintln(p.w)
}

// Elapsed returns the time since the Progress was created.
func (p *Progress) Elapsed() time.Duration {
	return time.Since(p.start)
}

func (p *Progress) print() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := float64(p.done) / max(time.Since(p.start).Seconds(), 1e-9)
	fmt.Fprintf(p.w, "\rIndexed %d/%d (%.1f%%) - %.1f chunks/s", p.done, p.total, pct, rate)
}
