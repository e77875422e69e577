// Package status tracks bootstrap progress and optionally serves it
// over HTTP for remote inspection during long provisioning runs.
package status

import (
	"sync"
	"time"
)

// Phase is the coarse state of the bootstrap run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseProvisioning Phase = "provisioning"
	PhaseFetching     Phase = "fetching-models"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// FileProgress describes one model file transfer.
type FileProgress struct {
	Name       string `json:"name"`
	TotalBytes int64  `json:"total_bytes"`
	DoneBytes  int64  `json:"done_bytes"`
	Finished   bool   `json:"finished"`
}

// Report is the JSON snapshot returned by the status endpoint.
type Report struct {
	RunID     string         `json:"run_id"`
	Version   string         `json:"version"`
	StartedAt time.Time      `json:"started_at"`
	Phase     Phase          `json:"phase"`
	Step      string         `json:"step,omitempty"`
	Files     []FileProgress `json:"files,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Tracker accumulates bootstrap progress. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	runID   string
	version string
	started time.Time
	phase   Phase
	step    string
	order   []string
	files   map[string]*FileProgress
	lastErr string
}

// NewTracker creates a tracker for one bootstrap run.
func NewTracker(runID, version string) *Tracker {
	return &Tracker{
		runID:   runID,
		version: version,
		started: time.Now().UTC(),
		phase:   PhaseIdle,
		files:   make(map[string]*FileProgress),
	}
}

// SetPhase records the coarse phase and clears the current step.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = p
	t.step = ""
}

// SetStep records the step currently executing within the phase.
func (t *Tracker) SetStep(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.step = step
}

// StartFile registers a file transfer. A total of 0 means the size is unknown.
func (t *Tracker) StartFile(name string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[name]; !ok {
		t.order = append(t.order, name)
	}
	t.files[name] = &FileProgress{Name: name, TotalBytes: total}
}

// AddBytes advances a file transfer by n bytes.
func (t *Tracker) AddBytes(name string, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[name]; ok {
		f.DoneBytes += n
	}
}

// FinishFile marks a file transfer as complete.
func (t *Tracker) FinishFile(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[name]; ok {
		f.Finished = true
	}
}

// Fail records a terminal error.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseFailed
	t.lastErr = err.Error()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]FileProgress, 0, len(t.order))
	for _, name := range t.order {
		files = append(files, *t.files[name])
	}

	return Report{
		RunID:     t.runID,
		Version:   t.version,
		StartedAt: t.started,
		Phase:     t.phase,
		Step:      t.step,
		Files:     files,
		Error:     t.lastErr,
	}
}
