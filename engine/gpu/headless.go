package gpu

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"sync"
)

// HeadlessStats counts the work a HeadlessDevice has been asked to do.
type HeadlessStats struct {
	BufferAllocations int
	BufferReleases    int
	BufferWrites      int
	BytesWritten      int
	Passes            int
	Draws             int
	PrimitiveDraws    int
	Presents          int
	TargetResizes     int
}

// DrawRecord captures the state of one draw when recording is enabled.
type DrawRecord struct {
	Target    Target
	Program   Program
	Mesh      string
	Primitive Primitive
	IsMesh    bool
	Raster    RasterState
	Params    map[string]any
}

type headlessBuffer struct {
	label string
	data  []byte
	freed bool
}

func (b *headlessBuffer) Label() string { return b.label }
func (b *headlessBuffer) Size() uint64  { return uint64(len(b.data)) }

type headlessMesh struct {
	label   string
	indices uint32
}

func (m *headlessMesh) Label() string      { return m.label }
func (m *headlessMesh) IndexCount() uint32 { return m.indices }

type headlessTexture struct {
	label string
}

func (t *headlessTexture) Label() string { return t.label }

// HeadlessDevice is a Device that keeps buffers in memory and records what
// it was asked to draw. It backs the evaluation mode and the tests.
type HeadlessDevice struct {
	mu sync.Mutex

	bound   [NumSlots]Buffer
	targets map[Target][2]int
	clears  map[Target]ClearState
	program Program
	params  map[string]any
	raster  RasterState
	pass    Target
	inPass  bool

	stats  HeadlessStats
	events []string
	draws  []DrawRecord

	record     bool
	failAlloc  func(label string, size uint64) error
	failResize func(t Target, width, height int) error
}

var _ Device = &HeadlessDevice{}

// NewHeadlessDevice creates a HeadlessDevice.
//
// Parameters:
//   - options: functional options (failure injection, draw recording)
//
// Returns:
//   - *HeadlessDevice: the device
func NewHeadlessDevice(options ...HeadlessDeviceOption) *HeadlessDevice {
	d := &HeadlessDevice{
		targets: make(map[Target][2]int),
		clears:  make(map[Target]ClearState),
		params:  make(map[string]any),
		raster:  DefaultRasterState(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

func (d *HeadlessDevice) CreateBuffer(label string, size uint64) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAlloc != nil {
		if err := d.failAlloc(label, size); err != nil {
			return nil, err
		}
	}
	d.stats.BufferAllocations++
	return &headlessBuffer{label: label, data: make([]byte, size)}, nil
}

func (d *HeadlessDevice) ReleaseBuffer(b Buffer) {
	hb, ok := b.(*headlessBuffer)
	if !ok || hb == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !hb.freed {
		hb.freed = true
		d.stats.BufferReleases++
	}
}

func (d *HeadlessDevice) WriteBuffer(b Buffer, offset uint64, data []byte) error {
	hb, ok := b.(*headlessBuffer)
	if !ok || hb == nil {
		return errors.New("headless: not a headless buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if hb.freed {
		return fmt.Errorf("headless: write to released buffer %q", hb.label)
	}
	if offset+uint64(len(data)) > uint64(len(hb.data)) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, hb.label, len(hb.data))
	}
	copy(hb.data[offset:], data)
	d.stats.BufferWrites++
	d.stats.BytesWritten += len(data)
	return nil
}

func (d *HeadlessDevice) BindStorage(slot Slot, b Buffer) {
	if slot < 0 || int(slot) >= NumSlots {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound[slot] = b
}

func (d *HeadlessDevice) UploadMesh(label string, data MeshData) (Mesh, error) {
	if len(data.Indices) == 0 || data.VertexCount() == 0 {
		return nil, fmt.Errorf("headless: mesh %q is empty", label)
	}
	return &headlessMesh{label: label, indices: uint32(len(data.Indices))}, nil
}

func (d *HeadlessDevice) UploadTexture(label string, img image.Image) (Texture, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("headless: texture %q is empty", label)
	}
	return &headlessTexture{label: label}, nil
}

func (d *HeadlessDevice) ResizeTarget(t Target, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failResize != nil {
		if err := d.failResize(t, width, height); err != nil {
			return err
		}
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("headless: invalid %s target size %dx%d", t, width, height)
	}
	d.targets[t] = [2]int{width, height}
	d.stats.TargetResizes++
	return nil
}

func (d *HeadlessDevice) BeginPass(t Target, cs ClearState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears[t] = cs
	if d.inPass {
		d.events = append(d.events, "EndPass")
	}
	d.inPass = true
	d.pass = t
	d.stats.Passes++
	d.events = append(d.events, "BeginPass "+t.String())
}

func (d *HeadlessDevice) EndPass() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inPass {
		return
	}
	d.inPass = false
	d.events = append(d.events, "EndPass")
}

func (d *HeadlessDevice) BindProgram(p Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = p
	d.events = append(d.events, "BindProgram "+p.String())
}

func (d *HeadlessDevice) SetParam(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params[name] = value
}

func (d *HeadlessDevice) SetRaster(s RasterState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raster = s
}

func (d *HeadlessDevice) Draw(m Mesh) {
	if m == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Draws++
	d.events = append(d.events, "Draw "+m.Label())
	if d.record {
		d.draws = append(d.draws, d.snapshot(DrawRecord{Mesh: m.Label(), IsMesh: true}))
	}
}

func (d *HeadlessDevice) DrawPrimitive(p Primitive) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.PrimitiveDraws++
	d.events = append(d.events, "DrawPrimitive "+p.String())
	if d.record {
		d.draws = append(d.draws, d.snapshot(DrawRecord{Primitive: p}))
	}
}

// snapshot fills the state fields of r. Caller must hold the mutex.
func (d *HeadlessDevice) snapshot(r DrawRecord) DrawRecord {
	r.Target = d.pass
	r.Program = d.program
	r.Raster = d.raster
	r.Params = maps.Clone(d.params)
	return r
}

func (d *HeadlessDevice) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inPass {
		d.inPass = false
		d.events = append(d.events, "EndPass")
	}
	d.stats.Presents++
	d.events = append(d.events, "Present")
}

func (d *HeadlessDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound = [NumSlots]Buffer{}
	clear(d.targets)
}

// Stats returns a copy of the work counters.
func (d *HeadlessDevice) Stats() HeadlessStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Events returns the ordered pass/program/draw log.
func (d *HeadlessDevice) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Draws returns the recorded draws. Empty unless recording is enabled.
func (d *HeadlessDevice) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

// ResetLog clears the event log and recorded draws. Counters are kept.
func (d *HeadlessDevice) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = d.events[:0]
	d.draws = d.draws[:0]
}

// Bound returns the buffer bound to slot, or nil.
func (d *HeadlessDevice) Bound(slot Slot) Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || int(slot) >= NumSlots {
		return nil
	}
	return d.bound[slot]
}

// BufferData returns a copy of a headless buffer's contents.
func (d *HeadlessDevice) BufferData(b Buffer) []byte {
	hb, ok := b.(*headlessBuffer)
	if !ok || hb == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), hb.data...)
}

// Param returns the last value set for a parameter.
func (d *HeadlessDevice) Param(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[name]
	return v, ok
}

// TargetSize returns the size of an offscreen target, or zeros if it was never created.
func (d *HeadlessDevice) TargetSize(t Target) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.targets[t]
	return s[0], s[1]
}

// LastClear returns the clear state of the most recent pass into t.
func (d *HeadlessDevice) LastClear(t Target) ClearState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears[t]
}
