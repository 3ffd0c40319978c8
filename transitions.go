package scxmlgo

import (
	"sort"
	"strings"
)

// enabledTransition pairs a Transition node with the (active) source state
// path it fired from, per spec.md §4.2.
type enabledTransition struct {
	source string
	trans  *Node
}

// eventMatches implements spec.md §4.2's descriptor matching: empty
// descriptor never matches (eventless transitions are selected separately);
// a descriptor ending in "*" is a prefix match; otherwise exact match.
func eventMatches(eventName, descriptor string) bool {
	if descriptor == "" {
		return false
	}
	if strings.HasSuffix(descriptor, "*") {
		return strings.HasPrefix(eventName, strings.TrimSuffix(descriptor, "*"))
	}
	return eventName == descriptor
}

// selectTransitions walks the active configuration in document order and
// returns every enabled transition matching the given event name (or, when
// eventless is true, every enabled transition with an empty event
// descriptor, ignoring eventName). cond failures are reported via onError
// so the caller can enqueue error.execution, per spec.md §4.2.
func (it *Interpreter) selectTransitions(eventName string, eventless bool, onError func(node *Node, err error)) []enabledTransition {
	var out []enabledTransition
	for _, path := range it.activePathsOrdered() {
		n, ok := it.index.Lookup(path)
		if !ok {
			continue
		}
		for _, t := range n.Transitions() {
			if eventless {
				if !t.IsEventless() {
					continue
				}
			} else {
				if t.IsEventless() || !eventMatches(eventName, t.Event) {
					continue
				}
			}
			ok, err := it.evalCond(t)
			if err != nil {
				if onError != nil {
					onError(t, err)
				}
				continue
			}
			if ok {
				out = append(out, enabledTransition{source: path, trans: t})
			}
		}
	}
	return out
}

// evalCond evaluates a transition/if/elseif's cond attribute. A missing
// cond is vacuously true.
func (it *Interpreter) evalCond(n *Node) (bool, error) {
	if n.Cond == "" {
		return true, nil
	}
	ok, err := it.evaluator.EvalCondition(n.Cond, it.state.scope())
	if err != nil {
		return false, &ExecutionError{Node: describeNode(n), Message: "cond evaluation failed", Cause: err}
	}
	return ok, nil
}

// resolveConflicts implements spec.md §4.2's conflict-resolution rule:
// when two selected transitions would exit overlapping states, keep the
// one whose source appears earlier in document order and drop the other.
// Transitions from disjoint parallel regions never conflict.
func (it *Interpreter) resolveConflicts(enabled []enabledTransition) []enabledTransition {
	if len(enabled) <= 1 {
		return enabled
	}
	// Precompute each candidate's exit set so overlap can be tested.
	type candidate struct {
		et  enabledTransition
		ex  map[string]bool
		doc int // position of source in document order, for precedence
	}
	docOrder := make(map[string]int, len(it.index.Paths()))
	for i, p := range it.index.Paths() {
		docOrder[p] = i
	}
	cands := make([]candidate, 0, len(enabled))
	for _, et := range enabled {
		ex := map[string]bool{}
		for _, p := range it.exitSetFor(et) {
			ex[p] = true
		}
		cands = append(cands, candidate{et: et, ex: ex, doc: docOrder[et.source]})
	}
	// Earlier document-order source wins on overlap.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].doc < cands[j].doc })

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		conflict := false
		for _, k := range kept {
			if overlaps(c.ex, k.ex) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, c)
		}
	}
	out := make([]enabledTransition, 0, len(kept))
	for _, k := range kept {
		out = append(out, k.et)
	}
	return out
}

func overlaps(a, b map[string]bool) bool {
	for p := range a {
		if b[p] {
			return true
		}
	}
	return false
}

// exitSetFor computes the exit set for a single enabled transition:
// spec.md §4.3 step 1. All active descendants of LCCA(source, target),
// excluding the LCCA itself for an "external" transition, including it for
// a self-transition where source and target coincide at the LCCA. A
// targetless transition exits nothing.
func (it *Interpreter) exitSetFor(et enabledTransition) []string {
	target := et.trans.Target
	if target == "" {
		// Targetless self-transition: exits nothing, just runs content.
		return nil
	}
	lcca := LCCA(et.source, target)
	var out []string
	for _, p := range it.activePathsOrdered() {
		if isStrictDescendant(p, lcca) {
			out = append(out, p)
		} else if p == lcca && et.source == target {
			// Self-transition onto the LCCA itself: re-enter it.
			out = append(out, p)
		}
	}
	return out
}

// entrySetFor computes the entry set for a single enabled transition:
// spec.md §4.3 step 4. For each prefix of target.split('.'), add it if not
// already active; for every newly-added state append its initial
// descendants (recursing through compound/parallel children until atomic).
func (it *Interpreter) entrySetFor(et enabledTransition, alreadyActive map[string]bool) []string {
	target := et.trans.Target
	if target == "" {
		return nil
	}
	var out []string
	for _, prefix := range ancestorPaths(target) {
		if alreadyActive[prefix] {
			continue
		}
		out = append(out, prefix)
		alreadyActive[prefix] = true
	}
	// Append the target's initial descendants, whether or not the target
	// itself was already active.
	leaf := target
	if n, ok := it.index.Lookup(leaf); ok {
		for _, d := range it.initialDescendants(n) {
			if !alreadyActive[d.Path()] {
				out = append(out, d.Path())
				alreadyActive[d.Path()] = true
			}
		}
	}
	return out
}

// initialDescendants recurses into a compound State's initial child, or
// every region of a Parallel, until atomic leaves are reached, per
// spec.md §4.3 step 4 and §3 "Parallel: all child regions are entered
// simultaneously".
func (it *Interpreter) initialDescendants(n *Node) []*Node {
	var out []*Node
	switch n.Kind {
	case KindState:
		if n.IsAtomic() {
			return nil
		}
		child := it.resolveInitialChild(n)
		if child == nil {
			return nil
		}
		out = append(out, child)
		out = append(out, it.initialDescendants(child)...)
	case KindParallel:
		for _, region := range n.StateChildren() {
			out = append(out, region)
			out = append(out, it.initialDescendants(region)...)
		}
	}
	return out
}

// resolveInitialChild resolves a compound State's initial substate:
// priority State.initial attribute (compared as a whole against the direct
// children's ids), else <initial> child's content,
// else the first State/Parallel/Final child in document order (spec.md
// §4.1 step 3 initial-state priority, generalized to any compound state).
func (it *Interpreter) resolveInitialChild(n *Node) *Node {
	if n.Initial != "" {
		for _, c := range n.StateChildren() {
			if c.ID == n.Initial {
				return c
			}
		}
	}
	if ic := n.InitialChild(); ic != nil {
		id := strings.TrimSpace(ic.Content)
		for _, c := range n.StateChildren() {
			if c.ID == id {
				return c
			}
		}
	}
	children := n.StateChildren()
	if len(children) > 0 {
		return children[0]
	}
	return nil
}

func describeNode(n *Node) string {
	if n.ID != "" {
		return string(n.Kind) + ":" + n.ID
	}
	return string(n.Kind)
}
