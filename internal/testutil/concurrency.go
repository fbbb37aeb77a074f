package testutil

import (
	"sync"
	"time"
)

// Recorder records when named pieces of work start and end. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	active  int
	peak    int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Track marks name as started and returns a func marking it finished.
func (r *Recorder) Track(name string) func() {
	r.mu.Lock()
	r.records[name] = &ExecutionRecord{Start: time.Now()}
	r.active++
	r.peak = max(r.peak, r.active)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.records[name].End = time.Now()
		r.active--
	}
}

// Record returns the record for name.
func (r *Recorder) Record(name string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Count returns how many distinct names were tracked.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Peak returns the highest number of pieces of work seen running at once.
func (r *Recorder) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}
