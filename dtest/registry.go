package dtest

import (
	"sync"
)

// Declaration is the discovery-to-core handoff for one unit of work. An
// external enumeration step produces declarations; the registry turns them
// into nodes.
type Declaration struct {
	// Name is the display name for the node (typically the fully
	// qualified function name the discovery step found).
	Name string

	// Key is an optional stable identity handle for the unit of work.
	// Two declarations with the same key resolve to the same node,
	// which is how decorations merge. When nil, the declaration is its
	// own unit of work and always creates a fresh node: a func value
	// cannot serve as the key, because every closure minted from one
	// literal shares the same code pointer.
	Key any

	// Kind selects the node variant; the zero value is KindTest.
	Kind Kind

	// Body is the unit of work. A nil body is an invalid definition.
	Body Callable

	// Pre and Post are the optional hooks run immediately around the
	// body, sharing its fault-isolation contract.
	Pre, Post Callable

	// Skip requests that the node be skipped instead of run.
	Skip bool

	// Exclude marks the unit as excluded from testing entirely: no node
	// is created for it.
	Exclude bool

	// Attrs is open metadata attached to the node, read-only after
	// declaration.
	Attrs map[string]any
}

// Registry is the run context for a dependency graph: it owns node
// identity, enumeration, and the single transition-notification sink.
//
// Identity is cached per registry rather than process-wide, so several
// independent runs can coexist in one process. The graph and all states
// are rebuilt fresh per run; Reset discards everything between runs.
type Registry struct {
	mu    sync.Mutex
	nodes map[any]*Node
	order []*Node
	sink  func(*Node, State)
}

// NewRegistry creates an empty run context.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[any]*Node)}
}

// SetNotify registers the sink invoked on every state transition except
// RUNNING. At most one sink is registered per registry; a later call
// replaces the earlier sink. Register before scheduling begins.
//
// The sink runs with no internal locks held; it may read node accessors
// but must not declare nodes or add edges.
func (r *Registry) SetNotify(sink func(*Node, State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Declare resolves a declaration to its node. A declaration carrying an
// explicit key resolves to the node previously declared under that key,
// folding in any newly supplied skip request, hooks, and attributes. A
// keyless declaration always creates a fresh node.
//
// Declare returns (nil, nil) for excluded units and an
// *InvalidTestDefinitionError when the body is not invokable.
func (r *Registry) Declare(d Declaration) (*Node, error) {
	if d.Exclude {
		return nil, nil
	}
	if d.Body == nil {
		return nil, &InvalidTestDefinitionError{Name: d.Name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Key != nil {
		if n, ok := r.nodes[d.Key]; ok {
			// Decorating an existing node: merge, never replace.
			if d.Skip {
				n.skipRequested = true
			}
			if d.Pre != nil {
				n.pre = d.Pre
			}
			if d.Post != nil {
				n.post = d.Post
			}
			for k, v := range d.Attrs {
				n.attrs[k] = v
			}
			if n.name == "" {
				n.name = d.Name
			}
			return n, nil
		}
	}

	n := &Node{
		reg:           r,
		name:          d.Name,
		kind:          d.Kind,
		body:          d.Body,
		pre:           d.Pre,
		post:          d.Post,
		skipRequested: d.Skip,
		attrs:         make(map[string]any, len(d.Attrs)),
		state:         StateUnstarted,
		deps:          make(map[*Node]struct{}),
		dependents:    make(map[*Node]struct{}),
	}
	for k, v := range d.Attrs {
		n.attrs[k] = v
	}
	key := d.Key
	if key == nil {
		key = n
	}
	r.nodes[key] = n
	r.order = append(r.order, n)
	return n, nil
}

// Test is shorthand for declaring a new test node.
func (r *Registry) Test(name string, body Callable) (*Node, error) {
	return r.Declare(Declaration{Name: name, Kind: KindTest, Body: body})
}

// Fixture is shorthand for declaring a new fixture node.
func (r *Registry) Fixture(name string, body Callable) (*Node, error) {
	return r.Declare(Declaration{Name: name, Kind: KindFixture, Body: body})
}

// Nodes enumerates every node in declaration order.
func (r *Registry) Nodes() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of declared nodes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Reset discards all nodes and the notification sink, preparing the
// registry for a fresh run.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[any]*Node)
	r.order = nil
	r.sink = nil
}
