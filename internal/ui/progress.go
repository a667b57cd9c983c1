package ui

import (
	"sync"
	"time"
)

// speedWindow is the minimum interval between speed samples.
const speedWindow = 500 * time.Millisecond

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0 to 1.0
	ETA         time.Duration
	CurrentFile string
	Errors      int
	Chunks      int
	Speed       SpeedStats
}

// SpeedStats is throughput in files per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressTracker accumulates progress events and derives throughput and
// a smoothed ETA from them. It is safe for concurrent use.
type ProgressTracker struct {
	mu  sync.Mutex
	now func() time.Time

	stage       Stage
	current     int
	total       int
	currentFile string
	chunks      int
	errors      []ErrorEvent

	start       time.Time
	stageStart  time.Time
	lastSample  time.Time
	lastCurrent int
	samples     int
	speed       SpeedStats
	lastETA     time.Duration
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		now:        now,
		stage:      StageScanning,
		start:      t,
		stageStart: t,
		lastSample: t,
	}
}

// SetStage moves to stage and resets the position and speed samples.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.lastCurrent = 0
	p.stageStart = t
	p.lastSample = t
	p.samples = 0
	p.speed = SpeedStats{}
	p.lastETA = 0
}

// Update records the position within the current stage.
func (p *ProgressTracker) Update(current, total int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if total > 0 {
		p.total = total
	}
	if file != "" {
		p.currentFile = file
	}

	t := p.now()
	elapsed := t.Sub(p.lastSample)
	if elapsed < speedWindow {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		if speed > p.speed.Peak {
			p.speed.Peak = speed
		}
	}
	p.lastCurrent = current
	p.lastSample = t
}

// AddChunks adds to the number of passages stored.
func (p *ProgressTracker) AddChunks(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks += n
}

// AddError records a failed document.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, event)
}

// Errors returns the failures recorded so far.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.start)
}

// Stats returns a snapshot. It takes the write lock because computing the
// ETA updates the smoothing state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.eta(),
		CurrentFile: p.currentFile,
		Errors:      len(p.errors),
		Chunks:      p.chunks,
		Speed:       p.speed,
	}
}

// eta must be called with the lock held.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	fraction := float64(p.current) / float64(p.total)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
