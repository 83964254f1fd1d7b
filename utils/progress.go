package utils

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"uptofetch/internal"
)

// DefaultProgressInterval is the minimum gap between two snapshots pushed to
// an observer.
const DefaultProgressInterval = 200 * time.Millisecond

const progressBarTemplate = `{{bar . "[" "=" ">" " " "]"}} {{counters . }}`

// ProgressTracker renders transfer progress as a text snapshot suitable for
// a status message. It never writes to a terminal itself.
type ProgressTracker struct {
	label     string
	bar       *pb.ProgressBar
	startTime time.Time
	total     int64
	current   int64
	mutex     sync.RWMutex
}

// TransferSummary contains final transfer statistics
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a tracker for a transfer of total bytes. A total
// of zero or less means the size is unknown.
func NewProgressTracker(label string, total int64) *ProgressTracker {
	tracker := &ProgressTracker{
		label:     label,
		startTime: time.Now(),
		total:     total,
	}

	if total > 0 {
		bar := pb.New64(total).SetTemplateString(progressBarTemplate)
		bar.Set(pb.Bytes, true)
		bar.SetWidth(40)
		tracker.bar = bar
	}

	return tracker
}

// Add records n more transferred bytes
func (p *ProgressTracker) Add(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += n
	if p.bar != nil {
		p.bar.SetCurrent(p.current)
	}
}

// Current returns the number of bytes transferred so far
func (p *ProgressTracker) Current() int64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.current
}

// Percent returns the completed percentage, or 0 when the total is unknown
func (p *ProgressTracker) Percent() float64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.total <= 0 {
		return 0
	}
	return float64(p.current) / float64(p.total) * 100
}

// Snapshot renders the current state: a "label: NN.NN%" header followed by
// the bar, or the transferred size when the total is unknown.
func (p *ProgressTracker) Snapshot() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.bar == nil {
		return fmt.Sprintf("%s: %s", p.label, SizeLabel(p.current))
	}

	percent := float64(p.current) / float64(p.total) * 100
	return fmt.Sprintf("%s: %.2f%%\n%s", p.label, percent, p.bar.String())
}

// Finish returns the transfer summary
func (p *ProgressTracker) Finish() *TransferSummary {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	totalTime := time.Since(p.startTime)
	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	return &TransferSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
	}
}

// ProgressReader feeds a tracker while reading and pushes throttled snapshots
// to an observer. Each read first checks the observer and the context, so a
// cancel request stops the transfer at the next chunk.
type ProgressReader struct {
	ctx      context.Context
	reader   io.Reader
	tracker  *ProgressTracker
	observer internal.TransferObserver
	limiter  internal.RateLimiter
	interval time.Duration
	lastPush time.Time
}

// NewProgressReader wraps reader. observer and limiter may be nil.
func NewProgressReader(ctx context.Context, reader io.Reader, tracker *ProgressTracker, observer internal.TransferObserver, limiter internal.RateLimiter) *ProgressReader {
	return &ProgressReader{
		ctx:      ctx,
		reader:   reader,
		tracker:  tracker,
		observer: observer,
		limiter:  limiter,
		interval: DefaultProgressInterval,
	}
}

// Read implements io.Reader
func (r *ProgressReader) Read(p []byte) (int, error) {
	if r.observer != nil && r.observer.Canceled() {
		return 0, internal.NewCanceledError("")
	}
	if err := r.ctx.Err(); err != nil {
		return 0, internal.NewCanceledError("").WithCause(err)
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		r.tracker.Add(int64(n))
		if r.limiter != nil {
			if werr := r.limiter.Wait(r.ctx, n); werr != nil {
				return n, internal.NewCanceledError("").WithCause(werr)
			}
		}
	}

	if r.observer != nil {
		now := time.Now()
		if err == io.EOF || now.Sub(r.lastPush) >= r.interval {
			r.lastPush = now
			r.observer.Progress(r.tracker.Snapshot())
		}
	}

	return n, err
}
