package scxmlgo

import "github.com/comalice/scxmlgo/history"

// lifecycleState models spec.md §4.7's per-state state machine:
// inactive -> entering -> active -> exiting -> inactive.
type lifecycleState int

const (
	lsInactive lifecycleState = iota
	lsEntering
	lsActive
	lsExiting
)

// activePathsOrdered returns the active configuration in document order,
// shallow-first, matching spec.md §3 "Active configuration" ordering.
func (it *Interpreter) activePathsOrdered() []string {
	docOrder := it.index.Paths()
	active := make(map[string]bool, len(it.active))
	for _, p := range it.active {
		active[p] = true
	}
	var out []string
	for _, p := range docOrder {
		if active[p] {
			out = append(out, p)
		}
	}
	return out
}

func (it *Interpreter) isActive(path string) bool {
	for _, p := range it.active {
		if p == path {
			return true
		}
	}
	return false
}

// mount executes a state's onentry actions, adds it to the active
// configuration, and — for a <final> child — either enqueues
// done.state.<parent-id> (nested final) or terminates the machine
// (top-level final), per spec.md §4.3 step 5, §4.7 enter(s)/"Terminal".
func (it *Interpreter) mount(path string) error {
	n, err := it.index.MustLookup(path)
	if err != nil {
		it.raiseErrorEvent(err)
		return err
	}

	for _, oe := range n.OnEntryNodes() {
		it.runExecutableChildren(oe)
	}

	it.active = append(it.active, path)
	it.recordHistory(history.KindStateEntry, nil, "")

	if n.Kind == KindFinal {
		if n.Parent() != nil {
			doneEvt := NewEvent("done.state."+n.Parent().ID, EventInternal, nil)
			it.state.PushPendingInternal(doneEvt)
		} else {
			// A top-level Final has no State/Parallel/Final ancestor: the
			// root itself has finished (spec.md §4.7 "Terminal"). No further
			// macrosteps run after this one.
			it.terminated = true
		}
	}
	return nil
}

// unmount executes a state's onexit actions and removes it from the active
// configuration (spec.md §4.3 step 2, §4.7 exit(s)).
func (it *Interpreter) unmount(path string) error {
	n, err := it.index.MustLookup(path)
	if err != nil {
		it.raiseErrorEvent(err)
		return err
	}

	for _, oe := range n.OnExitNodes() {
		it.runExecutableChildren(oe)
	}

	it.removeActive(path)
	it.recordHistory(history.KindStateExit, nil, "")
	return nil
}

func (it *Interpreter) removeActive(path string) {
	out := it.active[:0]
	for _, p := range it.active {
		if p != path {
			out = append(out, p)
		}
	}
	it.active = out
}

// runExecutableChildren runs every executable child of n in document
// order, threading the shared InternalState. Errors are already absorbed
// into error events by the individual node Run methods (spec.md §4.4,
// §7 policy: "expressions and executable content never propagate raw
// failures out of run").
func (it *Interpreter) runExecutableChildren(n *Node) {
	for _, c := range n.Children {
		if c.Executable {
			it.runNode(c)
		}
	}
}
