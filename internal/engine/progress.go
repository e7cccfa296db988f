package engine

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/datallboy/modfetch/internal/domain"
)

// speedWindow is how far back the rolling speed looks.
const speedWindow = 5 * time.Second

type sample struct {
	at    time.Time
	bytes int64
}

// progressTracker derives speed and ETA from the bytes written so far and
// forwards throttled snapshots to the request's callback.
type progressTracker struct {
	id      string
	total   int64
	current int64
	samples []sample

	emit     func(domain.Progress)
	throttle *rate.Sometimes
	now      func() time.Time
}

func newProgressTracker(id string, offset, total int64, interval time.Duration, emit func(domain.Progress)) *progressTracker {
	t := &progressTracker{
		id:       id,
		total:    total,
		current:  offset,
		emit:     emit,
		throttle: &rate.Sometimes{Interval: interval},
		now:      time.Now,
	}
	t.samples = append(t.samples, sample{at: t.now(), bytes: offset})
	return t
}

// Add records n more bytes and emits an update if the interval allows.
func (t *progressTracker) Add(n int64) {
	t.current += n

	now := t.now()
	t.samples = append(t.samples, sample{at: now, bytes: t.current})

	cutoff := now.Add(-speedWindow)
	drop := 0
	for drop < len(t.samples)-2 && t.samples[drop].at.Before(cutoff) {
		drop++
	}
	t.samples = t.samples[drop:]

	if t.emit == nil {
		return
	}
	t.throttle.Do(func() { t.emit(t.snapshot(false)) })
}

// Finish always emits, regardless of throttling.
func (t *progressTracker) Finish() {
	if t.emit == nil {
		return
	}
	p := t.snapshot(true)
	if p.TotalBytes > 0 {
		p.Percentage = 100
	}
	p.ETA = 0
	t.emit(p)
}

func (t *progressTracker) Speed() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	first, last := t.samples[0], t.samples[len(t.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.bytes-first.bytes) / elapsed
}

func (t *progressTracker) snapshot(complete bool) domain.Progress {
	p := domain.Progress{
		TransferID:      t.id,
		BytesDownloaded: t.current,
		TotalBytes:      t.total,
		Speed:           t.Speed(),
		IsComplete:      complete,
	}
	if t.total > 0 {
		p.Percentage = float64(t.current) / float64(t.total) * 100
		if p.Speed > 0 && t.current < t.total {
			remaining := float64(t.total - t.current)
			p.ETA = time.Duration(remaining / p.Speed * float64(time.Second))
		}
	}
	return p
}
