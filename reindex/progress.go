package reindex

import (
	"fmt"
	"io"
	"time"
)

// progressLine redraws one status line on w while the index is rebuilt.
// It is driven from the Run loop only.
type progressLine struct {
	w     io.Writer
	total int
	every int
	now   func() time.Time

	began time.Time
	drawn int // profiles visited at the last redraw
}

func newProgressLine(w io.Writer, total, every int) *progressLine {
	return &progressLine{
		w:     w,
		total: total,
		every: max(every, 1),
		now:   time.Now,
	}
}

func (p *progressLine) begin() {
	p.began = p.now()
	p.drawn = 0
}

// update redraws once at least every profiles were visited since the last redraw.
func (p *progressLine) update(stats *Stats) {
	if visited(stats)-p.drawn >= p.every {
		p.draw(stats)
	}
}

// end draws the final line, terminates it and returns the time since begin.
func (p *progressLine) end(stats *Stats) time.Duration {
	p.draw(stats)
	fmt.Fprintln(p.w)
	return p.now().Sub(p.began)
}

func (p *progressLine) draw(stats *Stats) {
	n := min(visited(stats), p.total)
	p.drawn = n

	var pct, perSecond float64
	if p.total > 0 {
		pct = 100 * float64(n) / float64(p.total)
	}
	if secs := p.now().Sub(p.began).Seconds(); secs > 0 {
		perSecond = float64(n) / secs
	}
	fmt.Fprintf(p.w, "\r%d/%d profiles (%.1f%%) indexed=%d skipped=%d %.0f/s",
		n, p.total, pct, stats.Indexed, stats.Skipped, perSecond)
}

func visited(stats *Stats) int {
	return stats.Indexed + stats.Skipped
}
