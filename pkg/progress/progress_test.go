package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerPhaseCounters(t *testing.T) {
	var reports []Report
	tracker := NewTracker(func(r Report) {
		reports = append(reports, r)
	})

	tracker.BeginPhase(PhaseCopyFile, 2, 30)
	tracker.Item("a.txt", 10)
	tracker.Item("b.txt", 20)
	tracker.Finish()

	require.Len(t, reports, 4)

	assert.Equal(t, Report{Phase: PhaseCopyFile, TotalItems: 2, TotalBytes: 30, Elapsed: reports[0].Elapsed}, reports[0])
	assert.Equal(t, int64(1), reports[1].ItemsProcessed)
	assert.Equal(t, int64(10), reports[1].BytesProcessed)
	assert.Equal(t, "a.txt", reports[1].CurrentItem)
	assert.Equal(t, int64(2), reports[2].ItemsProcessed)
	assert.Equal(t, int64(30), reports[2].BytesProcessed)

	final := reports[3]
	assert.Equal(t, PhaseFinished, final.Phase)
	assert.Equal(t, int64(2), final.ItemsProcessed)
	assert.Equal(t, int64(30), final.BytesProcessed)
}

func TestTrackerScanningDoesNotCountTowardRunTotals(t *testing.T) {
	var final Report
	tracker := NewTracker(func(r Report) {
		if r.Phase == PhaseFinished {
			final = r
		}
	})

	tracker.BeginPhase(PhaseScanning, TotalUnknown, TotalUnknown)
	tracker.Item("a.txt", 0)
	tracker.Item("b.txt", 0)
	tracker.BeginPhase(PhaseDeleteFile, 1, 0)
	tracker.Item("stale.txt", 0)
	tracker.Finish()

	assert.Equal(t, int64(1), final.ItemsProcessed, "only action groups count in the final report")
}

func TestTrackerConcurrentItems(t *testing.T) {
	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	var reports []Report
	tracker := NewTracker(func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})

	tracker.BeginPhase(PhaseCopyFile, workers*perWorker, 0)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.Item("x", 1)
			}
		}()
	}
	wg.Wait()
	tracker.Finish()

	mu.Lock()
	defer mu.Unlock()

	var lastItems int64
	for _, r := range reports[:len(reports)-1] {
		assert.GreaterOrEqual(t, r.ItemsProcessed, lastItems, "reports must be monotonic")
		lastItems = r.ItemsProcessed
	}
	assert.Equal(t, int64(workers*perWorker), lastItems)

	final := reports[len(reports)-1]
	assert.Equal(t, PhaseFinished, final.Phase)
	assert.Equal(t, int64(workers*perWorker), final.ItemsProcessed)
	assert.Equal(t, int64(workers*perWorker), final.BytesProcessed)
}

func TestTrackerNilSink(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.BeginPhase(PhaseCreateDirectory, 1, 0)
	tracker.Item("sub", 0)
	tracker.Finish()
}
