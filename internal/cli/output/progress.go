package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar tracks completed operations out of a known total. It is safe
// for concurrent use; redraws are throttled to one per interval.
type ProgressBar struct {
	w        io.Writer
	title    string
	total    int64
	current  int64
	width    int
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

// NewProgressBar creates a progress bar for total operations.
func NewProgressBar(w io.Writer, title string, total int64) *ProgressBar {
	return &ProgressBar{
		w:        w,
		title:    title,
		total:    total,
		width:    40,
		interval: 100 * time.Millisecond,
	}
}

// Increment records n completed operations.
func (p *ProgressBar) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		p.render()
	}
}

// Current returns the number of completed operations.
func (p *ProgressBar) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %d ops", p.title, p.current)
		return
	}

	percent := float64(p.current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}

	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%d/%d ops)", p.title, bar, percent*100, p.current, p.total)
}
