// Package scxmlgo implements the runtime core of an SCXML interpreter: the
// macrostep/microstep event-processing loop, transition-selection and
// state-configuration algorithms, the dual event queues, the data-model and
// executable-content execution pipeline, and the execution-history ledger.
//
// The package consumes an already-parsed node tree (see Node and its
// variants below); XML-to-tree parsing and expression-language evaluation
// are external collaborators, not covered here.
package scxmlgo

import (
	"fmt"
)

// Kind identifies a Node variant, used both for dispatch and for the node
// registry (NewNode) that replaces a class-per-element dynamic constructor
// table with a flat map of labels to constructors.
type Kind string

const (
	KindRoot       Kind = "scxml"
	KindState      Kind = "state"
	KindParallel   Kind = "parallel"
	KindFinal      Kind = "final"
	KindInitial    Kind = "initial"
	KindTransition Kind = "transition"
	KindDataModel  Kind = "datamodel"
	KindData       Kind = "data"
	KindOnEntry    Kind = "onentry"
	KindOnExit     Kind = "onexit"
	KindAssign     Kind = "assign"
	KindRaise      Kind = "raise"
	KindIf         Kind = "if"
	KindElseIf     Kind = "elseif"
	KindElse       Kind = "else"
	KindLog        Kind = "log"
	KindSend       Kind = "send"
	KindParam      Kind = "param"
	KindForeach    Kind = "foreach"
	KindCancel     Kind = "cancel"
	KindScript     Kind = "script"
)

// Datamodel dialects a Root node may declare.
type Datamodel string

const (
	DatamodelNull        Datamodel = ""
	DatamodelECMAScript  Datamodel = "ecmascript"
	DatamodelXPath       Datamodel = "xpath"
)

// Node is a single element of the parsed SCXML document tree. The tree is
// immutable after parse; the interpreter never mutates it during execution.
//
// Node is intentionally a single flat struct rather than a type per variant:
// Go has no sum types, and a tagged struct plus small per-kind accessor
// methods dispatch more simply than an interface hierarchy for a tree this
// shape (see DESIGN.md "Core node model").
type Node struct {
	Kind     Kind
	Content  string
	Children []*Node

	// Executable marks whether this node runs during entry/exit/transition.
	Executable bool
	// AllowChildren marks whether this node type may carry child nodes.
	AllowChildren bool

	// State/Parallel/Final/Root, and Data (the data.<id> key it writes)
	ID      string
	Initial string // Root.initial attr, or State.initial attr

	// Root
	Datamodel Datamodel

	// Transition
	Event  string
	Target string
	Cond   string

	// DataModel/Data/Param
	Expr     string
	Src      string
	Location string
	Name     string
	DataType string // Data.type attribute: "json" | "text"

	// Assign
	Clear *ClearMode

	// Raise/Send
	EventExpr string

	// Send
	TargetAttr string
	TargetExpr string
	Type       string
	TypeExpr   string
	Delay      string
	DelayExpr  string
	SendID     string
	IDLocation string
	Namelist   string

	// Log
	Label string

	// Foreach
	Array string
	Item  string
	Index string

	// Cancel
	CancelSendID     string
	CancelSendIDExpr string

	// path is populated by BuildIndex for State/Parallel/Final nodes; empty
	// for other kinds.
	path string
	// parent is populated by BuildIndex; nil for the root.
	parent *Node
}

// ClearMode distinguishes Assign's three clear modes: delete, explicit
// null, and explicit undefined. A nil *ClearMode means no clear: Assign
// writes a value.
type ClearMode int

const (
	ClearDelete    ClearMode = iota // clear === true: delete the location
	ClearSetNull                    // clear === null: set to nil
	ClearSetUndef                   // clear === undefined (explicit): set to Undefined sentinel
)

// Undefined is the sentinel value Assign writes for ClearSetUndef.
type undefinedType struct{}

var Undefined = undefinedType{}

// newNodeFn constructs a zero-value Node of a given Kind, used by the node
// registry below.
type newNodeFn func() *Node

var nodeRegistry = map[Kind]newNodeFn{
	KindRoot:       func() *Node { return &Node{Kind: KindRoot, AllowChildren: true} },
	KindState:      func() *Node { return &Node{Kind: KindState, AllowChildren: true} },
	KindParallel:   func() *Node { return &Node{Kind: KindParallel, AllowChildren: true} },
	KindFinal:      func() *Node { return &Node{Kind: KindFinal, AllowChildren: true} },
	KindInitial:    func() *Node { return &Node{Kind: KindInitial, AllowChildren: true} },
	KindTransition: func() *Node { return &Node{Kind: KindTransition, Executable: false, AllowChildren: true} },
	KindDataModel:  func() *Node { return &Node{Kind: KindDataModel, AllowChildren: true} },
	KindData:       func() *Node { return &Node{Kind: KindData, AllowChildren: true} },
	KindOnEntry:    func() *Node { return &Node{Kind: KindOnEntry, AllowChildren: true} },
	KindOnExit:     func() *Node { return &Node{Kind: KindOnExit, AllowChildren: true} },
	KindAssign:     func() *Node { return &Node{Kind: KindAssign, Executable: true} },
	KindRaise:      func() *Node { return &Node{Kind: KindRaise, Executable: true} },
	KindIf:         func() *Node { return &Node{Kind: KindIf, Executable: true, AllowChildren: true} },
	KindElseIf:     func() *Node { return &Node{Kind: KindElseIf, Executable: true, AllowChildren: true} },
	KindElse:       func() *Node { return &Node{Kind: KindElse, Executable: true, AllowChildren: true} },
	KindLog:        func() *Node { return &Node{Kind: KindLog, Executable: true} },
	KindSend:       func() *Node { return &Node{Kind: KindSend, Executable: true, AllowChildren: true} },
	KindParam:      func() *Node { return &Node{Kind: KindParam} },
	KindForeach:    func() *Node { return &Node{Kind: KindForeach, Executable: true, AllowChildren: true} },
	KindCancel:     func() *Node { return &Node{Kind: KindCancel, Executable: true} },
	KindScript:     func() *Node { return &Node{Kind: KindScript, Executable: true} },
}

// NewNode constructs an empty Node of the given kind via the node registry.
// Returns an error for an unknown kind rather than a zero Node, so callers
// building trees programmatically fail fast on typos.
func NewNode(kind Kind) (*Node, error) {
	fn, ok := nodeRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("scxmlgo: unknown node kind %q", kind)
	}
	return fn(), nil
}

// IsCompound reports whether a State node has State/Parallel children
// (i.e. is not atomic).
func (n *Node) IsCompound() bool {
	if n.Kind != KindState {
		return false
	}
	for _, c := range n.Children {
		if c.Kind == KindState || c.Kind == KindParallel {
			return true
		}
	}
	return false
}

// IsAtomic reports whether a State/Parallel/Final node has no State/Parallel
// children. Parallel nodes are never atomic (they always have regions); a
// Final node has no substates to branch into, so it is atomic.
func (n *Node) IsAtomic() bool {
	if n.Kind == KindParallel {
		return false
	}
	if n.Kind != KindState && n.Kind != KindFinal {
		return false
	}
	for _, c := range n.Children {
		if c.Kind == KindState || c.Kind == KindParallel {
			return false
		}
	}
	return true
}

// Path returns the canonical dotted path for a State/Parallel/Final node,
// populated by BuildIndex. Empty until the tree has been indexed.
func (n *Node) Path() string { return n.path }

// Parent returns the nearest State/Parallel/Final ancestor, populated by
// BuildIndex. Nil for the root and for un-indexed trees.
func (n *Node) Parent() *Node { return n.parent }

// InitialChild returns the node's <initial> marker child, if any.
func (n *Node) InitialChild() *Node {
	for _, c := range n.Children {
		if c.Kind == KindInitial {
			return c
		}
	}
	return nil
}

// StateChildren returns the direct State/Parallel/Final children, in
// document order.
func (n *Node) StateChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == KindState || c.Kind == KindParallel || c.Kind == KindFinal {
			out = append(out, c)
		}
	}
	return out
}

// Transitions returns the direct <transition> children, in document order.
func (n *Node) Transitions() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == KindTransition {
			out = append(out, c)
		}
	}
	return out
}

// OnEntryNodes / OnExitNodes return the direct <onentry>/<onexit> children.
func (n *Node) OnEntryNodes() []*Node { return n.childrenOfKind(KindOnEntry) }
func (n *Node) OnExitNodes() []*Node  { return n.childrenOfKind(KindOnExit) }

func (n *Node) childrenOfKind(k Kind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// IsEventless reports whether a Transition node has an empty event
// descriptor (selected solely on cond, never by event matching).
func (n *Node) IsEventless() bool {
	return n.Kind == KindTransition && n.Event == ""
}

// IsTargetless reports whether a Transition node has an empty target
// (a targetless self-transition: runs content without changing state).
func (n *Node) IsTargetless() bool {
	return n.Kind == KindTransition && n.Target == ""
}
