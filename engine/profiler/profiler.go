package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// Sample is the per-frame culling work fed to the profiler.
type Sample struct {
	Frame      time.Duration
	Assign     time.Duration
	Lights     int
	ListLength int
	NonEmpty   int
	Partitions int
}

// Report aggregates the samples of one update interval.
type Report struct {
	FPS           float64       `json:"fps"`
	Frames        int           `json:"frames"`
	AvgFrame      time.Duration `json:"avgFrameNs"`
	AvgAssign     time.Duration `json:"avgAssignNs"`
	MaxAssign     time.Duration `json:"maxAssignNs"`
	AvgListLength float64       `json:"avgListLength"`
	// Occupancy is the mean fraction of partitions holding at least one light.
	Occupancy float64 `json:"occupancy"`
	HeapMB    float64 `json:"heapMB"`
	GCCount   uint32  `json:"gcCount"`
}

// Profiler tracks frame rate, culling cost and memory statistics. A report is
// logged and returned every update interval.
type Profiler struct {
	log            logging.Logger
	now            func() time.Time
	updateInterval time.Duration
	lastTime       time.Time
	memStats       runtime.MemStats

	frames      int
	frameTotal  time.Duration
	assignTotal time.Duration
	assignMax   time.Duration
	listTotal   int
	occupancy   float64
}

// NewProfiler creates a Profiler with a one second update interval.
//
// Parameters:
//   - options: functional options (logger, interval, clock)
//
// Returns:
//   - *Profiler: the profiler
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		log:            logging.NewNopLogger(),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick records one frame. When the update interval has elapsed it logs and
// returns the aggregated report and starts a new interval.
//
// Parameters:
//   - s: the frame sample
//
// Returns:
//   - Report: the report of the finished interval
//   - bool: true if an interval finished on this tick
func (p *Profiler) Tick(s Sample) (Report, bool) {
	p.frames++
	p.frameTotal += s.Frame
	p.assignTotal += s.Assign
	p.assignMax = max(p.assignMax, s.Assign)
	p.listTotal += s.ListLength
	if s.Partitions > 0 {
		p.occupancy += float64(s.NonEmpty) / float64(s.Partitions)
	}

	current := p.now()
	elapsed := current.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	n := time.Duration(p.frames)
	r := Report{
		FPS:           float64(p.frames) / elapsed.Seconds(),
		Frames:        p.frames,
		AvgFrame:      p.frameTotal / n,
		AvgAssign:     p.assignTotal / n,
		MaxAssign:     p.assignMax,
		AvgListLength: float64(p.listTotal) / float64(p.frames),
		Occupancy:     p.occupancy / float64(p.frames),
		HeapMB:        float64(p.memStats.Alloc) / 1024 / 1024,
		GCCount:       p.memStats.NumGC,
	}
	p.log.Infof("[Profiler] FPS: %.2f | Frame: %v | Assign: %v (max %v) | List: %.0f | Occupancy: %.1f%% | Heap: %.2f MB | GC: %d",
		r.FPS, r.AvgFrame, r.AvgAssign, r.MaxAssign, r.AvgListLength, 100*r.Occupancy, r.HeapMB, r.GCCount)

	p.frames = 0
	p.frameTotal, p.assignTotal, p.assignMax = 0, 0, 0
	p.listTotal = 0
	p.occupancy = 0
	p.lastTime = current
	return r, true
}
