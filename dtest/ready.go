package dtest

// This file implements the readiness predicate and the two skip cascades.
// All graph inspection and the resulting transitions for a node happen
// atomically under the registry mutex; notifications are collected during
// the critical section and fired after it, in transition order.

// note is one pending sink notification.
type note struct {
	n *Node
	s State
}

// flush fires collected notifications outside the registry lock.
func (r *Registry) flush(notes []note) {
	if len(notes) == 0 {
		return
	}
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	for _, nt := range notes {
		notifyTransition(sink, nt.n, nt.s)
	}
}

// Ready answers whether n can run now.
//
// For a test, a failed or errored dependency resolves n to DEPFAIL and a
// skipped dependency resolves it to SKIPPED; a dependency still UNSTARTED
// or RUNNING blocks; otherwise every dependency is OK and n is ready. A
// setup fixture in a scope chain follows the same rule: there is no point
// preparing state for work that can never run.
//
// For any other fixture, a failed partner resolves n to DEPFAIL and a
// skipped partner to SKIPPED; beyond that every dependency only needs to
// have reached some terminal state, because a teardown must run regardless
// of whether the work it guards passed.
//
// Evaluating readiness is the only way a node acquires DEPFAIL, and one of
// two ways it acquires SKIPPED, without ever executing.
func (r *Registry) Ready(n *Node) Readiness {
	r.mu.Lock()
	var notes []note
	res := r.readyLocked(n, &notes)
	r.mu.Unlock()
	r.flush(notes)
	return res
}

func (r *Registry) readyLocked(n *Node, notes *[]note) Readiness {
	switch {
	case n.state.Terminal():
		return Resolved
	case n.state == StateRunning:
		return Blocked
	}
	if n.kind == KindFixture && n.role != roleSetUp {
		return r.fixtureReadyLocked(n, notes)
	}

	blocked := false
	skipped := false
	for dep := range n.deps {
		switch {
		case dep.state.Failed():
			if n.transitionLocked(StateDepFail) {
				*notes = append(*notes, note{n, StateDepFail})
			}
			return Resolved
		case dep.state == StateSkipped:
			skipped = true
		case dep.state != StateOK:
			blocked = true
		}
	}
	if skipped {
		if n.transitionLocked(StateSkipped) {
			*notes = append(*notes, note{n, StateSkipped})
		}
		return Resolved
	}
	if blocked {
		return Blocked
	}
	return Ready
}

func (r *Registry) fixtureReadyLocked(n *Node, notes *[]note) Readiness {
	if n.partner != nil {
		switch {
		case n.partner.state.Failed():
			if n.transitionLocked(StateDepFail) {
				*notes = append(*notes, note{n, StateDepFail})
			}
			return Resolved
		case n.partner.state == StateSkipped:
			if n.transitionLocked(StateSkipped) {
				*notes = append(*notes, note{n, StateSkipped})
			}
			return Resolved
		}
	}

	// The guarded work may have failed or been skipped; it just has to
	// be finished before the fixture runs.
	for dep := range n.deps {
		if !dep.state.Terminal() {
			return Blocked
		}
	}
	return Ready
}

// PropagateSkip marks n skipped and cascades the skip across the graph:
// forward to every dependent, and backward to dependencies via the
// skipped-consumer notification. Nodes already past UNSTARTED are left
// untouched, which makes the cascade idempotent.
//
// A fixture guards its own forward skip: it only marks itself skipped once
// every non-partner dependency is already skipped, so a teardown is never
// skipped merely because one sibling test was.
func (r *Registry) PropagateSkip(n *Node) {
	r.mu.Lock()
	var notes []note
	r.propagateSkipLocked(n, &notes)
	r.mu.Unlock()
	r.flush(notes)
}

func (r *Registry) propagateSkipLocked(n *Node, notes *[]note) {
	if n.kind == KindFixture {
		for dep := range n.deps {
			if dep != n.partner && dep.state != StateSkipped {
				return
			}
		}
	}
	if n.state != StateUnstarted {
		return
	}
	n.state = StateSkipped
	*notes = append(*notes, note{n, StateSkipped})

	for d := range n.dependents {
		r.propagateSkipLocked(d, notes)
	}
	for d := range n.deps {
		r.notifySkippedLocked(d, notes)
	}
}

// NotifySkipped tells n that one of its dependents was skipped. Tests
// ignore the notification. A fixture whose direct dependents are now all
// skipped has no surviving consumer and skips itself, re-entering the
// forward cascade.
func (r *Registry) NotifySkipped(n *Node) {
	r.mu.Lock()
	var notes []note
	r.notifySkippedLocked(n, &notes)
	r.mu.Unlock()
	r.flush(notes)
}

func (r *Registry) notifySkippedLocked(n *Node, notes *[]note) {
	if n.kind != KindFixture {
		return
	}
	for d := range n.dependents {
		if d.state != StateSkipped {
			return
		}
	}
	r.propagateSkipLocked(n, notes)
}
