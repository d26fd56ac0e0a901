package progress

import (
	"sync"
	"time"
)

// Phase identifies the activity a Report describes.
type Phase string

const (
	PhaseScanning        Phase = "scanning"
	PhaseComparing       Phase = "comparing"
	PhaseCreateDirectory Phase = "create-directory"
	PhaseCopyFile        Phase = "copy-file"
	PhaseDeleteFile      Phase = "delete-file"
	PhaseDeleteDirectory Phase = "delete-directory"
	PhaseFinished        Phase = "finished"
)

// isGroup reports whether the phase is one of the executed action groups.
// Only group phases contribute to the run-wide totals of the final report.
func (p Phase) isGroup() bool {
	switch p {
	case PhaseCreateDirectory, PhaseCopyFile, PhaseDeleteFile, PhaseDeleteDirectory:
		return true
	}
	return false
}

// TotalUnknown marks totals that cannot be known up front, such as the item
// count of an open-ended scan.
const TotalUnknown int64 = -1

// Report is an immutable snapshot of sync progress. The observer receives a
// sequence of these, never a mutable handle.
type Report struct {
	Phase          Phase
	ItemsProcessed int64
	TotalItems     int64
	BytesProcessed int64
	TotalBytes     int64
	Elapsed        time.Duration
	CurrentItem    string
}

// Func receives Report snapshots.
type Func func(Report)

// Discard ignores all reports.
func Discard(Report) {}

// Tracker aggregates counters for one synchronization run and pushes Report
// snapshots to a sink. A Tracker is owned by a single run; concurrent runs
// each get their own. Safe for concurrent use by executor workers.
type Tracker struct {
	sink    Func
	started time.Time

	mu         sync.Mutex
	phase      Phase
	totalItems int64
	totalBytes int64
	items      int64
	bytes      int64
	runItems   int64
	runBytes   int64
}

// NewTracker creates a tracker reporting to sink. A nil sink discards reports.
func NewTracker(sink Func) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{sink: sink, started: time.Now()}
}

// BeginPhase resets the per-phase counters, announces the new phase, and
// emits an initial report. Must not be called while workers from a previous
// phase are still running.
func (t *Tracker) BeginPhase(phase Phase, totalItems, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.totalItems = totalItems
	t.totalBytes = totalBytes
	t.items = 0
	t.bytes = 0
	t.emitLocked("")
}

// Item records one processed item and emits a report. For group phases the
// item also counts toward the run-wide totals of the final report.
func (t *Tracker) Item(rel string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items++
	t.bytes += size
	if t.phase.isGroup() {
		t.runItems++
		t.runBytes += size
	}
	t.emitLocked(rel)
}

// Finish emits the terminal report summing processed items and bytes across
// all action groups.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink(Report{
		Phase:          PhaseFinished,
		ItemsProcessed: t.runItems,
		TotalItems:     t.runItems,
		BytesProcessed: t.runBytes,
		TotalBytes:     t.runBytes,
		Elapsed:        time.Since(t.started),
	})
}

func (t *Tracker) emitLocked(rel string) {
	t.sink(Report{
		Phase:          t.phase,
		ItemsProcessed: t.items,
		TotalItems:     t.totalItems,
		BytesProcessed: t.bytes,
		TotalBytes:     t.totalBytes,
		Elapsed:        time.Since(t.started),
		CurrentItem:    rel,
	})
}
