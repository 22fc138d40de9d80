package dtest

import "fmt"

// ScopeKind is the nesting level a scope represents.
type ScopeKind int

const (
	// ScopePackage is the outermost level.
	ScopePackage ScopeKind = iota

	// ScopeModule nests inside a package.
	ScopeModule

	// ScopeClass is the innermost level.
	ScopeClass
)

func (k ScopeKind) String() string {
	switch k {
	case ScopePackage:
		return "package"
	case ScopeModule:
		return "module"
	case ScopeClass:
		return "class"
	}
	return "unknown"
}

// Scope is one nesting level of the discovered hierarchy. A scope may
// declare at most one setup fixture and one teardown fixture, owns the
// nodes declared directly inside it, and keeps its child scopes in
// declaration order.
type Scope struct {
	name     string
	kind     ScopeKind
	parent   *Scope
	children []*Scope
	setUp    *Node
	tearDown *Node
	members  []*Node
}

// NewScope creates an empty scope.
func NewScope(name string, kind ScopeKind) *Scope {
	return &Scope{name: name, kind: kind}
}

// Name returns the scope's name.
func (s *Scope) Name() string { return s.name }

// Kind returns the scope's nesting level.
func (s *Scope) Kind() ScopeKind { return s.kind }

// Parent returns the enclosing scope, or nil for a root.
func (s *Scope) Parent() *Scope { return s.parent }

// AddChild appends a nested scope.
func (s *Scope) AddChild(c *Scope) {
	c.parent = s
	s.children = append(s.children, c)
}

// Children returns the nested scopes in declaration order.
func (s *Scope) Children() []*Scope {
	out := make([]*Scope, len(s.children))
	copy(out, s.children)
	return out
}

// SetSetUp declares the scope's setup fixture. A scope has at most one.
// A setup is gated like a test: it never runs once a dependency failed.
func (s *Scope) SetSetUp(n *Node) error {
	if s.setUp != nil {
		return fmt.Errorf("scope %q already has a setup fixture", s.name)
	}
	s.setUp = n
	if n != nil {
		n.scope = s
		n.role = roleSetUp
	}
	return nil
}

// SetTearDown declares the scope's teardown fixture. A scope has at most
// one.
func (s *Scope) SetTearDown(n *Node) error {
	if s.tearDown != nil {
		return fmt.Errorf("scope %q already has a teardown fixture", s.name)
	}
	s.tearDown = n
	if n != nil {
		n.scope = s
		n.role = roleTearDown
	}
	return nil
}

// SetUp returns the scope's setup fixture, or nil.
func (s *Scope) SetUp() *Node { return s.setUp }

// TearDown returns the scope's teardown fixture, or nil.
func (s *Scope) TearDown() *Node { return s.tearDown }

// AddMember declares a test or nested fixture directly inside the scope.
func (s *Scope) AddMember(n *Node) {
	s.members = append(s.members, n)
	n.scope = s
}

// Members returns the nodes declared directly inside the scope.
func (s *Scope) Members() []*Node {
	out := make([]*Node, len(s.members))
	copy(out, s.members)
	return out
}

// Lineage returns the chain of scopes from the outermost ancestor down to
// s, in BuildChain's expected order.
func (s *Scope) Lineage() []*Scope {
	var out []*Scope
	for sc := s; sc != nil; sc = sc.parent {
		out = append([]*Scope{sc}, out...)
	}
	return out
}

// BuildChain wires the scoped fixtures of a nesting chain, ordered from
// outermost to innermost, into a single ordered dependency chain and
// attaches the member nodes to it:
//
//   - each setup depends on every setup of an enclosing level, so outer
//     setups complete before inner ones begin;
//   - each teardown depends on every teardown of a nested level, so inner
//     teardowns complete before outer ones begin;
//   - a teardown is paired with its own level's setup as partner, when one
//     exists;
//   - every member depends on every setup at its level and above;
//   - every teardown depends on every member at its level and below, so
//     cleanup runs only after all guarded work has resolved.
//
// A level with only a teardown and no setup is legal; the teardown simply
// has no partner.
func BuildChain(scopes []*Scope) error {
	depth := len(scopes)
	setups := make([]*Node, depth)
	teardowns := make([]*Node, depth)
	for i, sc := range scopes {
		setups[i] = sc.setUp
		teardowns[i] = sc.tearDown
	}

	for i := 0; i < depth; i++ {
		if setups[i] == nil {
			continue
		}
		for j := 0; j < i; j++ {
			if setups[j] != nil {
				setups[i].AddDependency(setups[j])
			}
		}
	}

	for i := 0; i < depth; i++ {
		if teardowns[i] == nil {
			continue
		}
		for j := i + 1; j < depth; j++ {
			if teardowns[j] != nil {
				teardowns[i].AddDependency(teardowns[j])
			}
		}
	}

	for i := 0; i < depth; i++ {
		if teardowns[i] == nil || setups[i] == nil {
			continue
		}
		if err := teardowns[i].SetPartner(setups[i]); err != nil {
			return fmt.Errorf("pairing teardown %q: %w", teardowns[i].Name(), err)
		}
	}

	for i, sc := range scopes {
		for _, m := range sc.members {
			for j := 0; j <= i; j++ {
				if setups[j] != nil {
					m.AddDependency(setups[j])
				}
			}
		}
	}

	for i := 0; i < depth; i++ {
		if teardowns[i] == nil {
			continue
		}
		for j := i; j < depth; j++ {
			for _, m := range scopes[j].members {
				teardowns[i].AddDependency(m)
			}
		}
	}

	return nil
}
