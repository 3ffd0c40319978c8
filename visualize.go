package scxmlgo

import (
	"bytes"
	"fmt"
)

// Visualize renders the current document and active configuration as
// Graphviz DOT source, adapted from the teacher's DefaultVisualizer.ExportDOT
// (internal/production/visualizer.go), generalized from the teacher's flat
// MachineConfig.States/children shape to the node-tree's State/Parallel/Final
// children, and from single-leaf `current` to the multi-region active
// configuration. Diagnostic only; never consulted by the interpreter loop.
func (it *Interpreter) Visualize() string {
	var buf bytes.Buffer
	buf.WriteString("digraph Statechart {\n  rankdir=LR;\n  node [shape=box, fontsize=10, style=rounded];\n  edge [fontsize=9];\n")

	active := map[string]bool{}
	for _, p := range it.activePathsOrdered() {
		active[p] = true
	}

	for _, root := range it.index.Root().StateChildren() {
		renderState(&buf, root, active)
	}
	renderTransitionEdges(&buf, it.index.Root())

	buf.WriteString("}\n")
	return buf.String()
}

func renderState(buf *bytes.Buffer, n *Node, active map[string]bool) {
	children := n.StateChildren()
	if len(children) > 0 {
		clusterID := "cluster_" + n.Path()
		style := ""
		if active[n.Path()] {
			style = " style=filled fillcolor=orange"
		}
		fmt.Fprintf(buf, "  subgraph %s {\n", clusterID)
		fmt.Fprintf(buf, "    label=\"%s (%s)\"%s;\n", n.ID, n.Kind, style)
		fmt.Fprintf(buf, "    \"%s\" [label=\"%s\" shape=ellipse%s];\n", n.Path(), n.ID, style)
		for _, c := range children {
			renderState(buf, c, active)
		}
		buf.WriteString("  }\n")
		return
	}

	style := ""
	if active[n.Path()] {
		style = " style=filled fillcolor=lightgreen"
	}
	fmt.Fprintf(buf, "  \"%s\" [label=\"%s\"%s];\n", n.Path(), n.ID, style)
}

func renderTransitionEdges(buf *bytes.Buffer, n *Node) {
	for _, s := range n.StateChildren() {
		for _, t := range s.Transitions() {
			if t.Target != "" {
				label := t.Event
				if label == "" {
					label = "ε"
				}
				fmt.Fprintf(buf, "  \"%s\" -> \"%s\" [label=\"%s\"];\n", s.Path(), t.Target, label)
			}
		}
		renderTransitionEdges(buf, s)
	}
}
