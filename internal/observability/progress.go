package observability

import (
	"sync"
	"time"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// Progress tracks where a run is. It is safe for concurrent use: the run
// writes, the status server reads.
type Progress struct {
	mu      sync.Mutex
	command string
	runID   string
	stage   string
	total   int
	sent    int
	failed  int
	started time.Time
	updated time.Time
	now     func() time.Time
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	RunID     string    `json:"run_id"`
	Command   string    `json:"command"`
	Stage     string    `json:"stage"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Remaining int       `json:"remaining"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProgress starts tracking a run.
func NewProgress(runID, command string) *Progress {
	p := &Progress{runID: runID, command: command, stage: "starting", now: time.Now}
	p.started = p.now().UTC()
	p.updated = p.started
	return p
}

// SetStage names the current pipeline stage.
func (p *Progress) SetStage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.updated = p.now().UTC()
}

// SetTotal sets the number of items the dispatch stage will attempt.
func (p *Progress) SetTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
	p.updated = p.now().UTC()
}

// Record counts one dispatch result.
func (p *Progress) Record(res domain.DispatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.OK() {
		p.sent++
	} else {
		p.failed++
	}
	p.updated = p.now().UTC()
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		RunID:     p.runID,
		Command:   p.command,
		Stage:     p.stage,
		Total:     p.total,
		Sent:      p.sent,
		Failed:    p.failed,
		Remaining: max(p.total-p.sent-p.failed, 0),
		StartedAt: p.started,
		UpdatedAt: p.updated,
	}
}
