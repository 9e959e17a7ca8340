// Package profiler - Per-stage timing statistics for the detection pipeline.
package profiler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSamples is the sliding window used when none is given.
const DefaultMaxSamples = 600

// TimingStats summarizes the recorded durations of one operation.
type TimingStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// timeTracker tracks operation timing statistics over a sliding window.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Profiler records how long named operations take. It is safe for concurrent use.
type Profiler struct {
	mu         sync.Mutex
	maxSamples int
	operations map[string]*timeTracker
}

// New creates a profiler.
//
// Arguments:
//   - maxSamples: The number of most recent durations kept per operation for the
//     average. Values < 1 mean DefaultMaxSamples.
//
// Returns:
//   - *Profiler: The profiler.
func New(maxSamples int) *Profiler {
	if maxSamples < 1 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		maxSamples: maxSamples,
		operations: make(map[string]*timeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one duration for name.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operations[name]
	if !exists {
		tracker = &timeTracker{
			minTime: duration,
			maxTime: duration,
		}
		p.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > p.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the statistics of one operation.
//
// Avg covers the sliding window; Count, Min and Max cover every recorded call.
func (p *Profiler) Stats(name string) (TimingStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.operations[name]
	if !ok {
		return TimingStats{}, false
	}
	return tracker.stats(name), true
}

// Snapshot returns the statistics of every operation, sorted by name.
func (p *Profiler) Snapshot() []TimingStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TimingStats, 0, len(p.operations))
	for name, tracker := range p.operations {
		out = append(out, tracker.stats(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs one line per operation.
func (p *Profiler) Report(logger *zap.Logger) {
	for _, s := range p.Snapshot() {
		logger.Info("operation timing",
			zap.String("operation", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("avg", s.Avg),
			zap.Duration("min", s.Min),
			zap.Duration("max", s.Max),
		)
	}
}

func (t *timeTracker) stats(name string) TimingStats {
	s := TimingStats{
		Name:  name,
		Count: t.count,
		Min:   t.minTime,
		Max:   t.maxTime,
	}
	if len(t.durations) > 0 {
		s.Avg = t.totalTime / time.Duration(len(t.durations))
	}
	return s
}
