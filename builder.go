package scxmlgo

import "fmt"

// Builder provides a fluent API for constructing a node tree using
// dot-separated state names, adapted from the teacher's MachineBuilder
// (builder.go): string-keyed auto-creating parents replace the teacher's
// sequential StateID allocation, since Node identity here is the dotted
// path itself rather than an assigned integer.
type Builder struct {
	root   *Node
	byPath map[string]*Node
}

// StateBuilder provides fluent methods for configuring one state, returned
// by Builder.State.
type StateBuilder struct {
	b *Builder
	n *Node
}

// NewBuilder creates a Builder rooted at an <scxml> node with the given
// initial child name and datamodel dialect.
func NewBuilder(initial string, dm Datamodel) *Builder {
	root, _ := NewNode(KindRoot)
	root.Initial = initial
	root.Datamodel = dm
	return &Builder{root: root, byPath: make(map[string]*Node)}
}

// State creates or retrieves a state by dotted path, auto-creating any
// missing ancestors as compound states (teacher's "auto-create parent"
// behavior in MachineBuilder.State).
func (b *Builder) State(path string) *StateBuilder {
	n := b.getOrCreate(path, KindState)
	return &StateBuilder{b: b, n: n}
}

// Parallel creates or retrieves a <parallel> region container by path.
func (b *Builder) Parallel(path string) *StateBuilder {
	n := b.getOrCreate(path, KindParallel)
	return &StateBuilder{b: b, n: n}
}

// Final creates or retrieves a <final> state by path.
func (b *Builder) Final(path string) *StateBuilder {
	n := b.getOrCreate(path, KindFinal)
	return &StateBuilder{b: b, n: n}
}

func (b *Builder) getOrCreate(path string, kind Kind) *Node {
	if n, ok := b.byPath[path]; ok {
		return n
	}
	parentPath, id := splitPath(path)
	n, _ := NewNode(kind)
	n.ID = id
	b.attach(parentPath, n)
	b.byPath[path] = n
	return n
}

func (b *Builder) attach(parentPath string, n *Node) {
	if parentPath == "" {
		b.root.Children = append(b.root.Children, n)
		return
	}
	parent, ok := b.byPath[parentPath]
	if !ok {
		parent = b.getOrCreate(parentPath, KindState)
	}
	parent.Children = append(parent.Children, n)
}

func splitPath(path string) (parent, name string) {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Build finalizes the tree: indexes it (assigning canonical paths and
// validating uniqueness/root shape) and returns the usable root Node.
func (b *Builder) Build() (*Node, error) {
	if err := validateBuilt(b.root); err != nil {
		return nil, err
	}
	if _, err := BuildIndex(b.root); err != nil {
		return nil, err
	}
	return b.root, nil
}

// Initial sets this compound state's <initial> marker child.
func (sb *StateBuilder) Initial(childID string) *StateBuilder {
	initial, _ := NewNode(KindInitial)
	initial.Content = childID
	sb.n.Children = append(sb.n.Children, initial)
	return sb
}

// Entry appends an executable child run on entry (wrapped in <onentry>).
func (sb *StateBuilder) Entry(action *Node) *StateBuilder {
	return sb.wrap(KindOnEntry, action)
}

// Exit appends an executable child run on exit (wrapped in <onexit>).
func (sb *StateBuilder) Exit(action *Node) *StateBuilder {
	return sb.wrap(KindOnExit, action)
}

func (sb *StateBuilder) wrap(kind Kind, action *Node) *StateBuilder {
	var wrapper *Node
	for _, c := range sb.n.Children {
		if c.Kind == kind {
			wrapper = c
			break
		}
	}
	if wrapper == nil {
		wrapper, _ = NewNode(kind)
		sb.n.Children = append(sb.n.Children, wrapper)
	}
	wrapper.Children = append(wrapper.Children, action)
	return sb
}

// On adds a transition from this state to target on eventName, optionally
// guarded by cond (empty means unconditional).
func (sb *StateBuilder) On(eventName, target, cond string) *StateBuilder {
	t, _ := NewNode(KindTransition)
	t.Event = eventName
	t.Target = target
	t.Cond = cond
	sb.n.Children = append(sb.n.Children, t)
	return sb
}

// Eventless adds a targetless-or-targeted eventless transition (empty event
// descriptor), guarded by cond.
func (sb *StateBuilder) Eventless(target, cond string) *StateBuilder {
	t, _ := NewNode(KindTransition)
	t.Target = target
	t.Cond = cond
	sb.n.Children = append(sb.n.Children, t)
	return sb
}

// Assign builds an <assign> executable node, for use with Entry/Exit/On content.
func Assign(location, expr string) *Node {
	n, _ := NewNode(KindAssign)
	n.Location = location
	n.Expr = expr
	return n
}

// Raise builds a <raise> executable node.
func Raise(event string) *Node {
	n, _ := NewNode(KindRaise)
	n.Content = event
	return n
}

// Log builds a <log> executable node.
func Log(label, expr string) *Node {
	n, _ := NewNode(KindLog)
	n.Label = label
	n.Expr = expr
	return n
}

// validateBuilt is the defensive root-kind check Build runs before
// BuildIndex, giving a builder-specific error message.
func validateBuilt(root *Node) error {
	if root.Kind != KindRoot {
		return fmt.Errorf("scxmlgo: builder root must be KindRoot")
	}
	return nil
}
