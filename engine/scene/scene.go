package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// Handle identifies a node in a Scene. Handles stay valid until the node is
// removed; a removed slot is reused with a new generation so stale handles
// are rejected.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was ever issued (the zero Handle never is).
func (h Handle) Valid() bool {
	return h.gen != 0
}

type node struct {
	gen      uint32
	alive    bool
	obj      game_object.GameObject
	parent   Handle
	children []Handle
}

// Scene is an arena of nodes forming a tree under a single root. Traversal
// visits parents before their children, in insertion order.
type Scene interface {
	// Root returns the handle of the root node. The root has no object and
	// an identity transform.
	//
	// Returns:
	//   - Handle: the root handle
	Root() Handle

	// Add inserts obj as the last child of parent.
	//
	// Parameters:
	//   - parent: an existing node (use Root() for top level)
	//   - obj: the node payload
	//
	// Returns:
	//   - Handle: the new node's handle
	//   - bool: false if parent is stale or obj is nil
	Add(parent Handle, obj game_object.GameObject) (Handle, bool)

	// Remove deletes a node and its whole subtree. The root cannot be removed.
	//
	// Parameters:
	//   - h: the node to remove
	//
	// Returns:
	//   - int: the number of nodes removed
	Remove(h Handle) int

	// Get returns the payload of a node.
	//
	// Parameters:
	//   - h: the node
	//
	// Returns:
	//   - game_object.GameObject: the payload (nil for the root)
	//   - bool: false if h is stale
	Get(h Handle) (game_object.GameObject, bool)

	// Parent returns the parent of h, or the zero Handle for the root.
	Parent(h Handle) (Handle, bool)

	// Children returns a copy of the ordered child handles of h.
	Children(h Handle) []Handle

	// World returns the world transform of h: the product of local
	// transforms from the root down.
	//
	// Parameters:
	//   - h: the node
	//
	// Returns:
	//   - mgl32.Mat4: the world transform
	//   - bool: false if h is stale
	World(h Handle) (mgl32.Mat4, bool)

	// Walk visits every enabled node below the root, parents before children.
	// A disabled node hides its subtree. Returning false from fn skips the
	// children of the visited node. The tree is captured before the first
	// call, so fn may add or remove nodes; changes show on the next Walk.
	//
	// Parameters:
	//   - fn: called with each node's handle, payload and world transform
	Walk(fn func(h Handle, obj game_object.GameObject, world mgl32.Mat4) bool)

	// Lights returns a flat list of every enabled light in traversal order,
	// each with its world transform for this frame.
	//
	// Returns:
	//   - []light.Instance: the light instances
	Lights() []light.Instance

	// Len returns the number of live nodes, excluding the root.
	Len() int

	// ActiveCamera returns the camera used for the frame, or nil.
	ActiveCamera() camera.Camera

	// SetActiveCamera sets the camera used for the frame. Nil disables
	// culling and lighting.
	SetActiveCamera(c camera.Camera)

	// Background returns the linear background colour.
	Background() mgl32.Vec3

	// SetBackground sets the linear background colour.
	SetBackground(c mgl32.Vec3)
}

type scene struct {
	mu         *sync.RWMutex
	nodes      []node
	free       []uint32
	live       int
	cam        camera.Camera
	background mgl32.Vec3
}

var _ Scene = &scene{}

// NewScene creates an empty Scene containing only the root node.
//
// Parameters:
//   - options: functional options (camera, background, initial objects)
//
// Returns:
//   - Scene: the scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:    &sync.RWMutex{},
		nodes: []node{{gen: 1, alive: true}},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Root() Handle {
	return Handle{index: 0, gen: 1}
}

// lookup returns the node for h. Caller must hold the lock.
func (s *scene) lookup(h Handle) (*node, bool) {
	if !h.Valid() || int(h.index) >= len(s.nodes) {
		return nil, false
	}
	n := &s.nodes[h.index]
	if !n.alive || n.gen != h.gen {
		return nil, false
	}
	return n, true
}

func (s *scene) Add(parent Handle, obj game_object.GameObject) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(parent, obj)
}

func (s *scene) add(parent Handle, obj game_object.GameObject) (Handle, bool) {
	if obj == nil {
		return Handle{}, false
	}
	if _, ok := s.lookup(parent); !ok {
		return Handle{}, false
	}

	var h Handle
	if k := len(s.free); k > 0 {
		idx := s.free[k-1]
		s.free = s.free[:k-1]
		gen := s.nodes[idx].gen + 1
		s.nodes[idx] = node{gen: gen, alive: true, obj: obj, parent: parent}
		h = Handle{index: idx, gen: gen}
	} else {
		s.nodes = append(s.nodes, node{gen: 1, alive: true, obj: obj, parent: parent})
		h = Handle{index: uint32(len(s.nodes) - 1), gen: 1}
	}
	// Re-lookup: append may have moved the slice.
	p, _ := s.lookup(parent)
	p.children = append(p.children, h)
	s.live++
	return h, true
}

func (s *scene) Remove(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == s.Root() {
		return 0
	}
	n, ok := s.lookup(h)
	if !ok {
		return 0
	}
	if p, ok := s.lookup(n.parent); ok {
		for i, c := range p.children {
			if c == h {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	return s.removeSubtree(h)
}

func (s *scene) removeSubtree(h Handle) int {
	n, ok := s.lookup(h)
	if !ok {
		return 0
	}
	children := n.children
	n.alive = false
	n.obj = nil
	n.children = nil
	s.free = append(s.free, h.index)
	s.live--

	removed := 1
	for _, c := range children {
		removed += s.removeSubtree(c)
	}
	return removed
}

func (s *scene) Get(h Handle) (game_object.GameObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.lookup(h)
	if !ok {
		return nil, false
	}
	return n.obj, true
}

func (s *scene) Parent(h Handle) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.lookup(h)
	if !ok {
		return Handle{}, false
	}
	return n.parent, true
}

func (s *scene) Children(h Handle) []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.lookup(h)
	if !ok {
		return nil
	}
	return append([]Handle(nil), n.children...)
}

func (s *scene) World(h Handle) (mgl32.Mat4, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.lookup(h)
	if !ok {
		return mgl32.Ident4(), false
	}
	world := mgl32.Ident4()
	for n.obj != nil {
		world = n.obj.LocalTransform().Mul4(world)
		n, ok = s.lookup(n.parent)
		if !ok {
			break
		}
	}
	return world, true
}

// visit is one captured node of a Walk. end is the index just past its subtree.
type visit struct {
	h     Handle
	obj   game_object.GameObject
	world mgl32.Mat4
	end   int
}

func (s *scene) Walk(fn func(h Handle, obj game_object.GameObject, world mgl32.Mat4) bool) {
	s.mu.RLock()
	root, _ := s.lookup(s.Root())
	visits := make([]visit, 0, s.live)
	for _, c := range root.children {
		visits = s.capture(visits, c, mgl32.Ident4())
	}
	s.mu.RUnlock()

	for i := 0; i < len(visits); {
		v := visits[i]
		if fn(v.h, v.obj, v.world) {
			i++
		} else {
			i = v.end
		}
	}
}

// capture appends the enabled subtree under h in pre-order. Caller must hold the lock.
func (s *scene) capture(visits []visit, h Handle, parentWorld mgl32.Mat4) []visit {
	n, ok := s.lookup(h)
	if !ok || !n.obj.Enabled() {
		return visits
	}
	at := len(visits)
	world := parentWorld.Mul4(n.obj.LocalTransform())
	visits = append(visits, visit{h: h, obj: n.obj, world: world})
	for _, c := range n.children {
		visits = s.capture(visits, c, world)
	}
	visits[at].end = len(visits)
	return visits
}

func (s *scene) Lights() []light.Instance {
	var out []light.Instance
	s.Walk(func(_ Handle, obj game_object.GameObject, world mgl32.Mat4) bool {
		if l := obj.Light(); l != nil {
			out = append(out, light.Instance{Light: *l, World: world})
		}
		return true
	})
	return out
}

func (s *scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *scene) ActiveCamera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetActiveCamera(c camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = c
}

func (s *scene) Background() mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

func (s *scene) SetBackground(c mgl32.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = c
}
