package dtest

import (
	"fmt"
	"io"
)

// NodeInfo is a read-only description of one node, suitable for rendering
// a dependency diagram. No engine behavior depends on exports.
type NodeInfo struct {
	// Name is the node's identity label.
	Name string

	// Kind is the node variant.
	Kind Kind

	// State is the node's state at export time.
	State State

	// DependsOn lists the names of the node's dependencies, sorted.
	DependsOn []string
}

// Export captures a read-only snapshot of the given nodes.
func Export(nodes []*Node) []NodeInfo {
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		info := NodeInfo{
			Name:  n.Name(),
			Kind:  n.Kind(),
			State: n.State(),
		}
		for _, dep := range n.Dependencies() {
			info.DependsOn = append(info.DependsOn, dep.Name())
		}
		out = append(out, info)
	}
	return out
}

// WriteDOT renders the dependency graph in Graphviz DOT format. Fixtures
// are drawn as boxes, tests as ellipses, and each node is labeled with its
// current state.
func WriteDOT(w io.Writer, nodes []*Node) error {
	if _, err := fmt.Fprintln(w, "digraph dtest {"); err != nil {
		return err
	}
	for _, info := range Export(nodes) {
		shape := "ellipse"
		if info.Kind == KindFixture {
			shape = "box"
		}
		_, err := fmt.Fprintf(w, "  %q [shape=%s, label=%q];\n",
			info.Name, shape, fmt.Sprintf("%s\\n%s", info.Name, info.State))
		if err != nil {
			return err
		}
		for _, dep := range info.DependsOn {
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", info.Name, dep); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
