package diag

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// Kind classifies a frame-path failure. None of them abort a frame.
type Kind int

const (
	// KindResourceAllocation reports a GPU buffer or render target that could
	// not be created. The frame continues with degraded output.
	KindResourceAllocation Kind = iota

	// KindMissingCamera reports a frame rendered without an active camera.
	// Culling and lighting are skipped for that frame.
	KindMissingCamera

	// KindCapacityMismatch reports a CPU-side staging array whose size does not
	// match the GPU allocation it targets. The upload is skipped.
	KindCapacityMismatch

	// KindUnimplementedStrategy reports a culling method that has no
	// implementation. It behaves as "no lights in any partition".
	KindUnimplementedStrategy
)

func (k Kind) String() string {
	switch k {
	case KindResourceAllocation:
		return "resource-allocation"
	case KindMissingCamera:
		return "missing-camera"
	case KindCapacityMismatch:
		return "capacity-mismatch"
	case KindUnimplementedStrategy:
		return "unimplemented-strategy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind serialize by name in JSON reports and stats streams.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for c := KindResourceAllocation; c <= KindUnimplementedStrategy; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown diagnostic kind %q", text)
}

// Diagnostic is one absorbed failure.
type Diagnostic struct {
	Kind      Kind   `json:"kind"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Frame     uint64 `json:"frame"`
	Err       error  `json:"-"`
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", d.Component, d.Kind, d.Message, d.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Component, d.Kind, d.Message)
}

// Unwrap exposes the underlying cause, if any.
func (d Diagnostic) Unwrap() error { return d.Err }

// Sink receives diagnostics. Report must not block the frame.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(d Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Reportf sends a diagnostic to s, tolerating a nil sink.
//
// Parameters:
//   - s: the destination sink (may be nil)
//   - kind: the diagnostic kind
//   - component: the reporting component name
//   - err: optional underlying error
//   - format: message format string
//   - args: format arguments
func Reportf(s Sink, kind Kind, component string, err error, format string, args ...any) {
	if s == nil {
		return
	}
	s.Report(Diagnostic{
		Kind:      kind,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
		Err:       err,
	})
}

// Fanout forwards every diagnostic to each of its sinks in order.
type Fanout []Sink

func (f Fanout) Report(d Diagnostic) {
	for _, s := range f {
		if s != nil {
			s.Report(d)
		}
	}
}

// FrameStamper sets Diagnostic.Frame from a shared counter before forwarding.
type FrameStamper struct {
	Next  Sink
	Frame *atomic.Uint64
}

func (f FrameStamper) Report(d Diagnostic) {
	if f.Frame != nil {
		d.Frame = f.Frame.Load()
	}
	if f.Next != nil {
		f.Next.Report(d)
	}
}

// LogSink writes diagnostics to a Logger at a level matching their kind.
type LogSink struct {
	Log logging.Logger
}

func (l LogSink) Report(d Diagnostic) {
	if l.Log == nil {
		return
	}
	switch d.Kind {
	case KindMissingCamera:
		l.Log.Debugf("%s", d)
	case KindResourceAllocation:
		l.Log.Errorf("%s", d)
	default:
		l.Log.Warnf("%s", d)
	}
}

// Recorder keeps every diagnostic in memory. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.items = append(r.items, d)
	r.mu.Unlock()
}

// Diagnostics returns a copy of everything recorded so far.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many diagnostics of the given kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = r.items[:0]
	r.mu.Unlock()
}

// Channel is a bounded, non-blocking diagnostic queue for consumers on other
// goroutines. When the queue is full new diagnostics are dropped and counted.
type Channel struct {
	ch      chan Diagnostic
	dropped atomic.Uint64
}

// NewChannel creates a Channel with the given buffer size (minimum 1).
func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Diagnostic, max(size, 1))}
}

func (c *Channel) Report(d Diagnostic) {
	select {
	case c.ch <- d:
	default:
		c.dropped.Add(1)
	}
}

// C returns the receive side of the queue.
func (c *Channel) C() <-chan Diagnostic { return c.ch }

// Dropped returns the number of diagnostics discarded because the queue was full.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }
