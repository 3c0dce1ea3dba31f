package loadgen

import (
	"sync"
	"time"
)

// StageWindow is the wall-clock window in which a stage actually ran.
type StageWindow struct {
	Index       int
	Concurrency int
	Start       time.Time
	End         time.Time
}

// Elapsed returns the window length, or zero while the window is still open.
func (w StageWindow) Elapsed() time.Duration {
	if w.End.IsZero() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Timeline records stage windows as the supervisor walks the stages.
//
// The stage start is taken under the write lock, so a reader that observes an
// outcome started after that instant also observes the window.
type Timeline struct {
	mu      sync.RWMutex
	windows []StageWindow
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Begin closes the open window, if any, and opens the window for stage index.
func (t *Timeline) Begin(index, concurrency int) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if n := len(t.windows); n > 0 && t.windows[n-1].End.IsZero() {
		t.windows[n-1].End = now
	}
	t.windows = append(t.windows, StageWindow{
		Index:       index,
		Concurrency: concurrency,
		Start:       now,
	})
	return now
}

// Finish closes the open window.
func (t *Timeline) Finish() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if n := len(t.windows); n > 0 && t.windows[n-1].End.IsZero() {
		t.windows[n-1].End = now
	}
	return now
}

// StageAt returns the index of the stage running at ts: the last window that
// started at or before ts. Returns -1 when ts precedes the first window.
func (t *Timeline) StageAt(ts time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.windows) - 1; i >= 0; i-- {
		if !ts.Before(t.windows[i].Start) {
			return t.windows[i].Index
		}
	}
	return -1
}

// Windows returns a copy of the recorded windows.
func (t *Timeline) Windows() []StageWindow {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]StageWindow, len(t.windows))
	copy(out, t.windows)
	return out
}

// Elapsed returns the time from the first stage start to the end of the last
// closed window.
func (t *Timeline) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total time.Duration
	for _, w := range t.windows {
		total += w.Elapsed()
	}
	return total
}
