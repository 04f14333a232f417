package gpu

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/draw"
)

const (
	litFormat   = wgpu.TextureFormatRGBA16Float
	depthFormat = wgpu.TextureFormatDepth24Plus

	initialRingSize = 1 << 20
)

var gbufferFormats = []wgpu.TextureFormat{
	wgpu.TextureFormatRGBA16Float, // view-space position, metalness
	wgpu.TextureFormatRGBA16Float, // view-space normal, roughness
	wgpu.TextureFormatRGBA8Unorm,  // albedo, coverage
}

// uniformStride is the distance between per-draw uniform blocks in the ring.
var uniformStride = common.AlignUp(paramsSize, 256)

type wgpuBuffer struct {
	buf   *wgpu.Buffer
	label string
	size  uint64
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

type wgpuMesh struct {
	label      string
	vertex     *wgpu.Buffer
	index      *wgpu.Buffer
	lines      *wgpu.Buffer
	indexCount uint32
	lineCount  uint32
}

func (m *wgpuMesh) Label() string      { return m.label }
func (m *wgpuMesh) IndexCount() uint32 { return m.indexCount }

type wgpuTexture struct {
	label string
	tex   *wgpu.Texture
	view  *wgpu.TextureView
}

func (t *wgpuTexture) Label() string { return t.label }

type attachment struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

func (a *attachment) release() {
	if a.view != nil {
		a.view.Release()
	}
	if a.tex != nil {
		a.tex.Release()
	}
	a.view, a.tex = nil, nil
}

type pipelineKey struct {
	program Program
	target  Target
	raster  RasterState
}

// WGPUDevice is the WebGPU implementation of Device. It draws into a window
// surface through an HDR lit target, a three-attachment G-buffer and a shared
// depth buffer. Every program shares one pipeline layout: group 0 holds the
// per-draw Params block at a dynamic offset in a uniform ring, group 1 the
// three storage slots, group 2 four sampled textures and a sampler.
type WGPUDevice struct {
	mu  *sync.Mutex
	log logging.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	forceFallback bool

	uniformLayout  *wgpu.BindGroupLayout
	storageLayout  *wgpu.BindGroupLayout
	textureLayout  *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout
	modules        [numPrograms]*wgpu.ShaderModule
	pipelines      map[pipelineKey]*wgpu.RenderPipeline

	ring          *wgpu.Buffer
	ringSize      uint64
	ringOffset    uint64
	ringBindGroup *wgpu.BindGroup
	block         [paramsSize]byte

	bound        [NumSlots]*wgpuBuffer
	fallback     *wgpu.Buffer
	storageGroup *wgpu.BindGroup
	storageDirty bool

	sampler       *wgpu.Sampler
	white         *wgpuTexture
	texParams     [numTextureBindings]any
	textureGroups map[[numTextureBindings]*wgpu.TextureView]*wgpu.BindGroup

	lit     attachment
	depth   attachment
	gbuffer [3]attachment
	litSize [2]int
	gbSize  [2]int

	quad   *wgpuMesh
	sphere *wgpuMesh

	encoder      *wgpu.CommandEncoder
	pass         *wgpu.RenderPassEncoder
	passTarget   Target
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	program      Program
	raster       RasterState

	// garbage holds resources referenced by the open command encoder; they
	// are released after the next submit.
	garbage []func()
}

var _ Device = &WGPUDevice{}

// NewWGPUDevice creates the WebGPU instance, adapter, device and surface,
// configures the surface and builds the shared layouts and built-in meshes.
// Pipelines are created lazily per program, target and raster state.
//
// Parameters:
//   - surfaceDescriptor: the window surface (see wgpuglfw.GetSurfaceDescriptor)
//   - width, height: initial surface size in pixels
//   - options: functional options
//
// Returns:
//   - *WGPUDevice: the device
//   - error: if any WebGPU object cannot be created
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...WGPUDeviceOption) (*WGPUDevice, error) {
	runtime.LockOSThread()
	d := &WGPUDevice{
		mu:            &sync.Mutex{},
		log:           logging.NewNopLogger(),
		presentMode:   wgpu.PresentModeFifo,
		pipelines:     make(map[pipelineKey]*wgpu.RenderPipeline),
		textureGroups: make(map[[numTextureBindings]*wgpu.TextureView]*wgpu.BindGroup),
		raster:        DefaultRasterState(),
	}
	for _, option := range options {
		option(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallback,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Light Culling Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.configureSurface(width, height)

	if err := d.initLayouts(); err != nil {
		return nil, err
	}
	if err := d.initModules(); err != nil {
		return nil, err
	}
	if err := d.initDefaults(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *WGPUDevice) configureSurface(width, height int) {
	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]
	for _, f := range capabilities.Formats {
		// The post program applies gamma itself.
		if f == wgpu.TextureFormatBGRA8Unorm || f == wgpu.TextureFormatRGBA8Unorm {
			d.surfaceFormat = f
			break
		}
	}
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: d.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (d *WGPUDevice) initLayouts() error {
	var err error
	d.uniformLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Params Layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   paramsSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("params layout: %w", err)
	}

	storageEntries := make([]wgpu.BindGroupLayoutEntry, NumSlots)
	for i := range storageEntries {
		storageEntries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type: wgpu.BufferBindingTypeReadOnlyStorage,
			},
		}
	}
	d.storageLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Storage Layout",
		Entries: storageEntries,
	})
	if err != nil {
		return fmt.Errorf("storage layout: %w", err)
	}

	textureEntries := make([]wgpu.BindGroupLayoutEntry, 0, numTextureBindings+1)
	for i := range numTextureBindings {
		textureEntries = append(textureEntries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		})
	}
	textureEntries = append(textureEntries, wgpu.BindGroupLayoutEntry{
		Binding:    numTextureBindings,
		Visibility: wgpu.ShaderStageFragment,
		Sampler: wgpu.SamplerBindingLayout{
			Type: wgpu.SamplerBindingTypeFiltering,
		},
	})
	d.textureLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Texture Layout",
		Entries: textureEntries,
	})
	if err != nil {
		return fmt.Errorf("texture layout: %w", err)
	}

	d.pipelineLayout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Light Culling Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.uniformLayout, d.storageLayout, d.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}
	return nil
}

func (d *WGPUDevice) initModules() error {
	for _, p := range Programs() {
		m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label: p.String(),
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: ProgramSource(p),
			},
		})
		if err != nil {
			return fmt.Errorf("shader module %s: %w", p, err)
		}
		d.modules[p] = m
	}
	return nil
}

func (d *WGPUDevice) initDefaults() error {
	if err := d.growRing(initialRingSize); err != nil {
		return err
	}

	fb, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Empty Storage",
		Size:  MinBufferSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("fallback storage buffer: %w", err)
	}
	d.fallback = fb
	d.storageDirty = true

	d.sampler, err = d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Linear Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	white := image.NewRGBA(image.Rect(0, 0, 1, 1))
	white.Pix[0], white.Pix[1], white.Pix[2], white.Pix[3] = 255, 255, 255, 255
	wt, err := d.createTexture("White", white)
	if err != nil {
		return err
	}
	d.white = wt

	if d.quad, err = d.createMesh("Quad Primitive", QuadMesh()); err != nil {
		return err
	}
	if d.sphere, err = d.createMesh("Sphere Primitive", SphereMesh(16, 24)); err != nil {
		return err
	}
	return nil
}

// growRing replaces the uniform ring with one of at least size bytes. The
// old ring stays alive until the next submit. Caller must hold the mutex
// (or be the constructor).
func (d *WGPUDevice) growRing(size uint64) error {
	ring, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Params Ring",
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("params ring (%d bytes): %w", size, err)
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Params Ring Bind Group",
		Layout: d.uniformLayout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  ring,
			Offset:  0,
			Size:    paramsSize,
		}},
	})
	if err != nil {
		ring.Release()
		return fmt.Errorf("params ring bind group: %w", err)
	}
	if d.ring != nil {
		old, oldBG := d.ring, d.ringBindGroup
		d.garbage = append(d.garbage, func() {
			oldBG.Release()
			old.Release()
		})
	}
	d.ring, d.ringBindGroup, d.ringSize, d.ringOffset = ring, bg, size, 0
	d.log.Debugf("[WGPUDevice] params ring is now %d bytes", size)
	return nil
}

func (d *WGPUDevice) CreateBuffer(label string, size uint64) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{buf: buf, label: label, size: size}, nil
}

func (d *WGPUDevice) ReleaseBuffer(b Buffer) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb == nil || wb.buf == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.bound {
		if d.bound[i] == wb {
			d.bound[i] = nil
			d.storageDirty = true
		}
	}
	buf := wb.buf
	wb.buf = nil
	d.releaseLater(buf.Release)
}

func (d *WGPUDevice) WriteBuffer(b Buffer, offset uint64, data []byte) error {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb == nil || wb.buf == nil {
		return errors.New("wgpu: not a live storage buffer")
	}
	if offset+uint64(len(data)) > wb.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, wb.label, wb.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.WriteBuffer(wb.buf, offset, data)
	return nil
}

func (d *WGPUDevice) BindStorage(slot Slot, b Buffer) {
	if slot < 0 || int(slot) >= NumSlots {
		return
	}
	wb, _ := b.(*wgpuBuffer)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound[slot] != wb {
		d.bound[slot] = wb
		d.storageDirty = true
	}
}

func (d *WGPUDevice) UploadMesh(label string, data MeshData) (Mesh, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createMesh(label, data)
}

func (d *WGPUDevice) createMesh(label string, data MeshData) (*wgpuMesh, error) {
	if len(data.Indices) == 0 || data.VertexCount() == 0 {
		return nil, fmt.Errorf("mesh %q is empty", label)
	}
	lines := wireframeIndices(data.Indices)

	m := &wgpuMesh{label: label, indexCount: uint32(len(data.Indices)), lineCount: uint32(len(lines))}
	var err error
	if m.vertex, err = d.initBuffer(label+" Vertex Buffer", wgpu.BufferUsageVertex, common.SliceToBytes(data.Vertices)); err != nil {
		return nil, err
	}
	if m.index, err = d.initBuffer(label+" Index Buffer", wgpu.BufferUsageIndex, common.SliceToBytes(data.Indices)); err != nil {
		return nil, err
	}
	if m.lines, err = d.initBuffer(label+" Line Buffer", wgpu.BufferUsageIndex, common.SliceToBytes(lines)); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *WGPUDevice) initBuffer(label string, usage wgpu.BufferUsage, data []byte) (*wgpu.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  common.AlignUp(uint64(len(data)), 4),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	d.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// wireframeIndices converts a triangle list into a line list of its edges.
func wireframeIndices(tris []uint32) []uint32 {
	lines := make([]uint32, 0, len(tris)*2)
	for i := 0; i+2 < len(tris); i += 3 {
		a, b, c := tris[i], tris[i+1], tris[i+2]
		lines = append(lines, a, b, b, c, c, a)
	}
	return lines
}

func (d *WGPUDevice) UploadTexture(label string, img image.Image) (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createTexture(label, img)
}

func (d *WGPUDevice) createTexture(label string, img image.Image) (*wgpuTexture, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("texture %q is empty", label)
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	w, h := uint32(b.Dx()), uint32(b.Dy())

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", label, err)
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		rgba.Pix,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("texture view %q: %w", label, err)
	}
	return &wgpuTexture{label: label, tex: tex, view: view}, nil
}

func (d *WGPUDevice) ResizeTarget(t Target, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid %s target size %dx%d", t, width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch t {
	case TargetScreen:
		d.configureSurface(width, height)
		return nil
	case TargetLit:
		if err := d.ensureDepth(width, height); err != nil {
			return err
		}
		old := d.lit
		a, err := d.createAttachment("Lit Target", litFormat, width, height, true)
		if err != nil {
			return err
		}
		d.lit = a
		d.litSize = [2]int{width, height}
		d.retireAttachments(old)
		return nil
	case TargetGBuffer:
		if err := d.ensureDepth(width, height); err != nil {
			return err
		}
		var next [3]attachment
		for i, f := range gbufferFormats {
			a, err := d.createAttachment(fmt.Sprintf("G-Buffer %d", i), f, width, height, true)
			if err != nil {
				for j := range i {
					next[j].release()
				}
				return err
			}
			next[i] = a
		}
		old := d.gbuffer
		d.gbuffer = next
		d.gbSize = [2]int{width, height}
		d.retireAttachments(old[:]...)
		return nil
	}
	return fmt.Errorf("unknown target %s", t)
}

// ensureDepth recreates the shared depth buffer when its size changes.
// Caller must hold the mutex.
func (d *WGPUDevice) ensureDepth(width, height int) error {
	if d.depth.view != nil && d.litSize == [2]int{width, height} && d.gbSize == [2]int{width, height} {
		return nil
	}
	old := d.depth
	a, err := d.createAttachment("Depth Target", depthFormat, width, height, false)
	if err != nil {
		return err
	}
	d.depth = a
	d.retireAttachments(old)
	return nil
}

func (d *WGPUDevice) createAttachment(label string, format wgpu.TextureFormat, width, height int, sampled bool) (attachment, error) {
	usage := wgpu.TextureUsageRenderAttachment
	if sampled {
		usage |= wgpu.TextureUsageTextureBinding
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return attachment{}, fmt.Errorf("%s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return attachment{}, fmt.Errorf("%s view: %w", label, err)
	}
	return attachment{tex: tex, view: view}, nil
}

// retireAttachments schedules old attachments for release and drops cached
// texture bind groups that may reference them. Caller must hold the mutex.
func (d *WGPUDevice) retireAttachments(old ...attachment) {
	for _, a := range old {
		d.releaseLater(a.release)
	}
	for k, bg := range d.textureGroups {
		d.releaseLater(bg.Release)
		delete(d.textureGroups, k)
	}
}

// releaseLater releases fn after the next submit, or immediately if no frame is
// being recorded. Caller must hold the mutex.
func (d *WGPUDevice) releaseLater(fn func()) {
	if d.encoder == nil {
		fn()
		return
	}
	d.garbage = append(d.garbage, fn)
}

func (d *WGPUDevice) BeginPass(t Target, clear ClearState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.endPassLocked()
	if d.encoder == nil {
		enc, err := d.device.CreateCommandEncoder(nil)
		if err != nil {
			d.log.Errorf("[WGPUDevice] create command encoder: %v", err)
			return
		}
		d.encoder = enc
	}

	loadOp := wgpu.LoadOpLoad
	if clear.ClearColor {
		loadOp = wgpu.LoadOpClear
	}
	clearValue := wgpu.Color{
		R: float64(clear.Color[0]),
		G: float64(clear.Color[1]),
		B: float64(clear.Color[2]),
		A: float64(clear.Color[3]),
	}

	desc := &wgpu.RenderPassDescriptor{}
	switch t {
	case TargetScreen:
		if d.frameSurface == nil {
			surfaceTexture, err := d.surface.GetCurrentTexture()
			if err != nil {
				d.log.Warnf("[WGPUDevice] acquire surface texture: %v", err)
				return
			}
			view, err := surfaceTexture.CreateView(nil)
			if err != nil {
				surfaceTexture.Release()
				d.log.Warnf("[WGPUDevice] surface view: %v", err)
				return
			}
			d.frameSurface, d.frameView = surfaceTexture, view
		}
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       d.frameView,
			LoadOp:     loadOp,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearValue,
		}}
	case TargetLit, TargetGBuffer:
		if d.depth.view == nil {
			d.log.Warnf("[WGPUDevice] %s target has not been created", t)
			return
		}
		if t == TargetLit {
			if d.lit.view == nil {
				return
			}
			desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
				View: d.lit.view, LoadOp: loadOp, StoreOp: wgpu.StoreOpStore, ClearValue: clearValue,
			}}
		} else {
			for _, a := range d.gbuffer {
				if a.view == nil {
					return
				}
				desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
					View: a.view, LoadOp: loadOp, StoreOp: wgpu.StoreOpStore, ClearValue: clearValue,
				})
			}
		}
		depthLoad := wgpu.LoadOpLoad
		if clear.ClearDepth {
			depthLoad = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            d.depth.view,
			DepthLoadOp:     depthLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	default:
		return
	}

	d.pass = d.encoder.BeginRenderPass(desc)
	d.passTarget = t
}

func (d *WGPUDevice) EndPass() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endPassLocked()
}

func (d *WGPUDevice) endPassLocked() {
	if d.pass == nil {
		return
	}
	d.pass.End()
	d.pass = nil
}

func (d *WGPUDevice) BindProgram(p Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = p
}

func (d *WGPUDevice) SetParam(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot, ok := textureParams[name]; ok {
		d.texParams[slot] = value
		return
	}
	if err := encodeParam(d.block[:], name, value); err != nil {
		d.log.Warnf("[WGPUDevice] %v", err)
	}
}

func (d *WGPUDevice) SetRaster(s RasterState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raster = s
}

func (d *WGPUDevice) Draw(m Mesh) {
	wm, ok := m.(*wgpuMesh)
	if !ok || wm == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawLocked(wm)
}

func (d *WGPUDevice) DrawPrimitive(p Primitive) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p == PrimitiveSphere {
		d.drawLocked(d.sphere)
		return
	}
	d.drawLocked(d.quad)
}

func (d *WGPUDevice) drawLocked(m *wgpuMesh) {
	if d.pass == nil || m == nil {
		return
	}
	pl, err := d.pipelineFor(pipelineKey{program: d.program, target: d.passTarget, raster: d.raster})
	if err != nil {
		d.log.Errorf("[WGPUDevice] pipeline %s/%s: %v", d.program, d.passTarget, err)
		return
	}
	offset, err := d.pushParams()
	if err != nil {
		d.log.Errorf("[WGPUDevice] %v", err)
		return
	}
	storage, err := d.storageBindGroup()
	if err != nil {
		d.log.Errorf("[WGPUDevice] storage bind group: %v", err)
		return
	}
	textures, err := d.textureBindGroup()
	if err != nil {
		d.log.Errorf("[WGPUDevice] texture bind group: %v", err)
		return
	}

	d.pass.SetPipeline(pl)
	d.pass.SetBindGroup(0, d.ringBindGroup, []uint32{uint32(offset)})
	d.pass.SetBindGroup(1, storage, nil)
	d.pass.SetBindGroup(2, textures, nil)
	d.pass.SetVertexBuffer(0, m.vertex, 0, wgpu.WholeSize)
	if d.raster.Wireframe {
		d.pass.SetIndexBuffer(m.lines, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		d.pass.DrawIndexed(m.lineCount, 1, 0, 0, 0)
		return
	}
	d.pass.SetIndexBuffer(m.index, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	d.pass.DrawIndexed(m.indexCount, 1, 0, 0, 0)
}

// pushParams copies the current Params block into the ring and returns its offset.
func (d *WGPUDevice) pushParams() (uint64, error) {
	if d.ringOffset+uniformStride > d.ringSize {
		if err := d.growRing(d.ringSize * 2); err != nil {
			return 0, err
		}
	}
	offset := d.ringOffset
	d.queue.WriteBuffer(d.ring, offset, d.block[:])
	d.ringOffset += uniformStride
	return offset, nil
}

func (d *WGPUDevice) storageBindGroup() (*wgpu.BindGroup, error) {
	if !d.storageDirty && d.storageGroup != nil {
		return d.storageGroup, nil
	}
	entries := make([]wgpu.BindGroupEntry, NumSlots)
	for i := range entries {
		buf := d.fallback
		if b := d.bound[i]; b != nil && b.buf != nil {
			buf = b.buf
		}
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: buf, Offset: 0, Size: wgpu.WholeSize}
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Storage Bind Group",
		Layout:  d.storageLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	if d.storageGroup != nil {
		d.releaseLater(d.storageGroup.Release)
	}
	d.storageGroup = bg
	d.storageDirty = false
	return bg, nil
}

func (d *WGPUDevice) textureBindGroup() (*wgpu.BindGroup, error) {
	var views [numTextureBindings]*wgpu.TextureView
	if d.program == ProgramDeferredLight {
		for i, a := range d.gbuffer {
			views[i] = a.view
		}
	} else {
		for i, v := range d.texParams {
			views[i] = d.resolveTexture(v)
		}
	}
	for i := range views {
		if views[i] == nil {
			views[i] = d.white.view
		}
	}
	if bg, ok := d.textureGroups[views]; ok {
		return bg, nil
	}

	entries := make([]wgpu.BindGroupEntry, 0, numTextureBindings+1)
	for i, v := range views {
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i), TextureView: v})
	}
	entries = append(entries, wgpu.BindGroupEntry{Binding: numTextureBindings, Sampler: d.sampler})
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Texture Bind Group",
		Layout:  d.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	d.textureGroups[views] = bg
	return bg, nil
}

func (d *WGPUDevice) resolveTexture(v any) *wgpu.TextureView {
	switch t := v.(type) {
	case *wgpuTexture:
		return t.view
	case Target:
		if t == TargetLit {
			return d.lit.view
		}
	}
	return nil
}

func (d *WGPUDevice) pipelineFor(key pipelineKey) (*wgpu.RenderPipeline, error) {
	if pl, ok := d.pipelines[key]; ok {
		return pl, nil
	}

	var formats []wgpu.TextureFormat
	hasDepth := true
	switch key.target {
	case TargetScreen:
		formats = []wgpu.TextureFormat{d.surfaceFormat}
		hasDepth = false
	case TargetLit:
		formats = []wgpu.TextureFormat{litFormat}
	case TargetGBuffer:
		formats = gbufferFormats
	}

	rs := key.raster
	writeMask := wgpu.ColorWriteMaskAll
	if rs.ColorMask {
		writeMask = wgpu.ColorWriteMask(0)
	}
	targets := make([]wgpu.ColorTargetState, len(formats))
	for i, f := range formats {
		targets[i] = wgpu.ColorTargetState{Format: f, WriteMask: writeMask}
		if rs.Blend == BlendAdditive {
			targets[i].Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{
					Operation: wgpu.BlendOperationAdd,
					SrcFactor: wgpu.BlendFactorSrcAlpha,
					DstFactor: wgpu.BlendFactorOne,
				},
				Alpha: wgpu.BlendComponent{
					Operation: wgpu.BlendOperationAdd,
					SrcFactor: wgpu.BlendFactorOne,
					DstFactor: wgpu.BlendFactorOne,
				},
			}
		}
	}

	topology := wgpu.PrimitiveTopologyTriangleList
	if rs.Wireframe {
		topology = wgpu.PrimitiveTopologyLineList
	}

	var depthStencil *wgpu.DepthStencilState
	if hasDepth {
		compare := wgpu.CompareFunctionAlways
		if rs.DepthTest {
			compare = compareFunction(rs.DepthCompare)
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: rs.DepthTest && rs.DepthWrite,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	module := d.modules[key.program]
	pl, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s/%s Render Pipeline", key.program, key.target),
		Layout: d.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: VertexStride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(rs.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return nil, err
	}
	d.pipelines[key] = pl
	d.log.Debugf("[WGPUDevice] created pipeline %s/%s (%d cached)", key.program, key.target, len(d.pipelines))
	return pl, nil
}

func compareFunction(c CompareFunc) wgpu.CompareFunction {
	switch c {
	case CompareLessEqual:
		return wgpu.CompareFunctionLessEqual
	case CompareGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case CompareAlways:
		return wgpu.CompareFunctionAlways
	default:
		return wgpu.CompareFunctionLess
	}
}

func cullMode(c CullMode) wgpu.CullMode {
	switch c {
	case CullBack:
		return wgpu.CullModeBack
	case CullFront:
		return wgpu.CullModeFront
	default:
		return wgpu.CullModeNone
	}
}

func (d *WGPUDevice) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.endPassLocked()
	if d.encoder != nil {
		commandBuffer, err := d.encoder.Finish(nil)
		if err != nil {
			d.log.Errorf("[WGPUDevice] finish command encoder: %v", err)
		} else {
			d.queue.Submit(commandBuffer)
			commandBuffer.Release()
		}
		d.encoder.Release()
		d.encoder = nil
	}

	if d.frameSurface != nil {
		d.surface.Present()
		d.frameView.Release()
		d.frameSurface.Release()
		d.frameView, d.frameSurface = nil, nil
	}

	for _, fn := range d.garbage {
		fn()
	}
	d.garbage = d.garbage[:0]
	d.ringOffset = 0
}

func (d *WGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.endPassLocked()
	if d.encoder != nil {
		d.encoder.Release()
		d.encoder = nil
	}
	for _, fn := range d.garbage {
		fn()
	}
	d.garbage = nil

	for _, pl := range d.pipelines {
		pl.Release()
	}
	clear(d.pipelines)
	for _, bg := range d.textureGroups {
		bg.Release()
	}
	clear(d.textureGroups)
	if d.storageGroup != nil {
		d.storageGroup.Release()
	}
	d.lit.release()
	d.depth.release()
	for i := range d.gbuffer {
		d.gbuffer[i].release()
	}
	for _, m := range []*wgpuMesh{d.quad, d.sphere} {
		if m != nil {
			m.vertex.Release()
			m.index.Release()
			m.lines.Release()
		}
	}
	if d.ringBindGroup != nil {
		d.ringBindGroup.Release()
	}
	if d.ring != nil {
		d.ring.Release()
	}
	if d.fallback != nil {
		d.fallback.Release()
	}
	if d.white != nil {
		d.white.view.Release()
		d.white.tex.Release()
	}
	for _, m := range d.modules {
		if m != nil {
			m.Release()
		}
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
