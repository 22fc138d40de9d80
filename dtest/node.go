package dtest

import (
	"context"
	"sort"
)

// Kind distinguishes the two node variants.
type Kind int

const (
	// KindTest contributes 1 to aggregate test counts.
	KindTest Kind = iota

	// KindFixture is a setup or teardown node. It contributes 0 to test
	// counts and, for teardowns, may carry a partner edge.
	KindFixture
)

func (k Kind) String() string {
	if k == KindFixture {
		return "fixture"
	}
	return "test"
}

// fixtureRole records how a fixture is used in a scope chain. The role
// selects the readiness rule: a setup is gated like a test and never runs
// after a failed dependency, while a teardown (or an unchained fixture)
// only needs its dependencies finished.
type fixtureRole int

const (
	roleNone fixtureRole = iota
	roleSetUp
	roleTearDown
)

// Callable is the unit of work wrapped by a node. A nil return marks the
// phase successful; an AssertionError marks it failed; any other error or a
// panic marks it errored.
type Callable func(ctx context.Context) error

// Node is a unit of schedulable work: a test or a fixture with identity,
// state, an attribute bag, and forward/backward dependency edges.
//
// Nodes are created through a Registry, which guarantees that two
// declarations of the same underlying unit of work resolve to the same
// node. State and edges are guarded by the owning registry; all accessors
// are safe for concurrent use.
type Node struct {
	reg  *Registry
	name string
	kind Kind

	body Callable
	pre  Callable
	post Callable

	skipRequested bool
	attrs         map[string]any
	scope         *Scope
	role          fixtureRole

	// Guarded by reg.mu.
	state      State
	deps       map[*Node]struct{}
	dependents map[*Node]struct{}
	partner    *Node
	rec        *Recorder
}

// Name returns the node's display name.
func (n *Node) Name() string { return n.name }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Weight is the node's contribution to aggregate test counts: 1 for a
// test, 0 for a fixture.
func (n *Node) Weight() int {
	if n.kind == KindTest {
		return 1
	}
	return 0
}

// State returns the node's current state.
func (n *Node) State() State {
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	return n.state
}

// SkipRequested reports whether the node was declared with a skip request.
// The request is honored by the scheduling layer before the node runs.
func (n *Node) SkipRequested() bool { return n.skipRequested }

// Attr returns the metadata value declared under key.
func (n *Node) Attr(key string) (any, bool) {
	v, ok := n.attrs[key]
	return v, ok
}

// Attrs returns a copy of the node's metadata. The bag is set at
// declaration time and read-only thereafter.
func (n *Node) Attrs() map[string]any {
	out := make(map[string]any, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// Scope returns the scope the node was declared in, or nil. The reference
// exists for display and grouping only; it implies no ownership.
func (n *Node) Scope() *Scope { return n.scope }

// Result returns the recorder from the node's most recent execution, or
// nil if the node has not run.
func (n *Node) Result() *Recorder {
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	return n.rec
}

// Partner returns the setup fixture paired with this teardown fixture, or
// nil.
func (n *Node) Partner() *Node {
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	return n.partner
}

// Dependencies returns the nodes that must resolve before this node may
// run, sorted by name.
func (n *Node) Dependencies() []*Node {
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	return sortNodes(n.deps)
}

// Dependents returns the nodes depending on this one, sorted by name.
func (n *Node) Dependents() []*Node {
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	return sortNodes(n.dependents)
}

// AddDependency declares that n depends on dep. The reverse edge is
// maintained automatically: after the call, n is a dependent of dep.
// Self-edges and duplicates are ignored.
func (n *Node) AddDependency(dep *Node) {
	if dep == nil || dep == n {
		return
	}
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	n.deps[dep] = struct{}{}
	dep.dependents[n] = struct{}{}
}

// SetPartner pairs this teardown fixture with its corresponding setup. The
// partner edge doubles as a dependency edge, but is excluded from the
// ordinary-dependency rules during skip propagation. A partner may be set
// at most once and only on a fixture.
func (n *Node) SetPartner(setUp *Node) error {
	if setUp == nil {
		return nil
	}
	if n.kind != KindFixture {
		return ErrNotFixture
	}
	n.reg.mu.Lock()
	defer n.reg.mu.Unlock()
	if n.partner != nil {
		return ErrPartnerAlreadySet
	}
	n.deps[setUp] = struct{}{}
	setUp.dependents[n] = struct{}{}
	n.partner = setUp
	return nil
}

// String returns the node's name.
func (n *Node) String() string { return n.name }

// transition moves the node into state s and notifies the registry sink.
// It returns false, without side effects, when the node is already
// terminal.
func (n *Node) transition(s State) bool {
	n.reg.mu.Lock()
	if !n.transitionLocked(s) {
		n.reg.mu.Unlock()
		return false
	}
	sink := n.reg.sink
	n.reg.mu.Unlock()

	notifyTransition(sink, n, s)
	return true
}

// transitionLocked performs the state change with reg.mu held. Terminal
// states are sticky.
func (n *Node) transitionLocked(s State) bool {
	if n.state.Terminal() {
		return false
	}
	n.state = s
	return true
}

// notifyTransition invokes the registered sink for every transition except
// the unnotified RUNNING transition.
func notifyTransition(sink func(*Node, State), n *Node, s State) {
	if sink == nil || s == StateRunning {
		return
	}
	sink(n, s)
}

func sortNodes(set map[*Node]struct{}) []*Node {
	out := make([]*Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
