package health

import "github.com/doridoridoriand/connwatch/internal/ping"

// DefaultWindowSize is the number of recent outcomes kept per target.
const DefaultWindowSize = 5

// Window is a bounded, insertion-ordered history of outcomes for one target.
// It is not safe for concurrent use; the aggregator owns every instance.
type Window struct {
	buf   []ping.Outcome
	start int
	size  int
}

// NewWindow creates an empty window holding at most capacity outcomes.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{buf: make([]ping.Outcome, capacity)}
}

// Push appends outcome, evicting the oldest entry once the window is full.
func (w *Window) Push(outcome ping.Outcome) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = outcome
		w.size++
		return
	}
	w.buf[w.start] = outcome
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of outcomes currently held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Outcomes returns a copy of the held outcomes, oldest first.
func (w *Window) Outcomes() []ping.Outcome {
	out := make([]ping.Outcome, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Classify evaluates the current window contents against th.
func (w *Window) Classify(th Thresholds) Classification {
	return Classify(w.Outcomes(), th)
}
