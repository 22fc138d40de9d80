package dtest

import "context"

// Run executes the node's three phases with fault isolation and transitions
// the node to the recorder's verdict.
//
// The caller must have confirmed readiness first; Run does not re-check
// dependencies. The protocol is:
//
//  1. Transition to RUNNING (never notified).
//  2. Run the pre hook, if defined, inside a PRE boundary.
//  3. Run the body inside a BODY boundary.
//  4. Run the post hook, if defined, inside a POST boundary. The post
//     hook runs even when the earlier phases faulted.
//  5. Transition to the verdict (OK, FAIL or ERROR) and notify the
//     registered sink exactly once.
//
// Run returns the recorder so the caller can inspect phase-level detail.
// Calling Run on a node already in a terminal state is a no-op returning
// the node's existing recorder, or an empty recorder when the node
// resolved (DEPFAIL, SKIPPED) without ever executing.
func (n *Node) Run(ctx context.Context) *Recorder {
	rec := NewRecorder()

	n.reg.mu.Lock()
	if !n.transitionLocked(StateRunning) {
		if n.rec != nil {
			rec = n.rec
		}
		n.reg.mu.Unlock()
		return rec
	}
	n.rec = rec
	n.reg.mu.Unlock()

	if n.pre != nil {
		rec.Run(ctx, PhasePre, n.pre)
	}
	rec.Run(ctx, PhaseBody, n.body)
	if n.post != nil {
		rec.Run(ctx, PhasePost, n.post)
	}

	n.transition(rec.Verdict())
	return rec
}
