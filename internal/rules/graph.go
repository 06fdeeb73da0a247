package rules

import (
	"fmt"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// Graph is one driver's registered rule-graph: every Pattern, File,
// Rule, and DependencyRule node it declared during the register phase
// (spec §4.4 "Register"), plus the declaration order the evaluator
// walks dependencies in.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Node looks up a registered node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns every registered node name in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// put inserts or updates a node. Re-registering an existing name
// updates it in place rather than duplicating it (spec §4.4
// "re-registering the same name updates the existing node").
func (g *Graph) put(n *Node) {
	if _, exists := g.nodes[n.Name]; !exists {
		g.order = append(g.order, n.Name)
	}
	g.nodes[n.Name] = n
}

// AddPattern registers (or updates) a Pattern node.
func (g *Graph) AddPattern(name, glob string, cond ConditionFunc) {
	g.put(&Node{Name: name, Kind: KindPattern, Glob: glob, Condition: cond})
}

// AddFile registers (or updates) a File node.
func (g *Graph) AddFile(name, path string, cond ConditionFunc) {
	g.put(&Node{Name: name, Kind: KindFile, FilePath: path, Condition: cond})
}

// AddRule registers a Rule node, validating its source references and
// target per spec §4.4's registration-error rules.
func (g *Graph) AddRule(name string, source []SourceRef, target Target, action ActionFunc, cond ConditionFunc) error {
	if err := g.validateSource(name, source); err != nil {
		return err
	}
	if err := g.validateTarget(name, target, len(source) > 0); err != nil {
		return err
	}
	g.put(&Node{
		Name: name, Kind: KindRule, Source: source, Target: target,
		Action: action, Condition: cond,
	})
	return nil
}

// AddDependencyRule registers a DependencyRule node: a Rule whose
// dependency set can grow dynamically via expand at evaluation time
// (spec §3 "DependencyRule").
func (g *Graph) AddDependencyRule(name string, source []SourceRef, expand ExpandFunc, target Target, action ActionFunc, cond ConditionFunc) error {
	if err := g.validateSource(name, source); err != nil {
		return err
	}
	if err := g.validateTarget(name, target, true); err != nil {
		return err
	}
	g.put(&Node{
		Name: name, Kind: KindDependencyRule, Source: source, Target: target,
		Action: action, Condition: cond, Expand: expand,
	})
	return nil
}

func (g *Graph) validateSource(ruleName string, source []SourceRef) error {
	for _, s := range source {
		if s.NodeName == "" {
			continue // inline pattern, nothing to resolve yet
		}
		if isSpecialSourceName(s.NodeName) {
			continue
		}
		if _, ok := g.nodes[s.NodeName]; !ok {
			return bakeerr.Wrap(bakeerr.KindDriverRegistration, "add-rule", ruleName,
				fmt.Errorf("rule %q names unknown dependency %q", ruleName, s.NodeName))
		}
	}
	return nil
}

func (g *Graph) validateTarget(ruleName string, t Target, hasSource bool) error {
	switch t.Kind {
	case TargetMap:
		if !hasSource {
			return bakeerr.Wrap(bakeerr.KindDriverRegistration, "add-rule", ruleName,
				fmt.Errorf("rule %q has a map target but no source", ruleName))
		}
	case TargetPattern:
		for _, n := range t.Nodes {
			name := n
			if len(name) > 0 && name[0] == '$' {
				name = name[1:]
			}
			if isSpecialSourceName(name) {
				continue
			}
			if _, ok := g.nodes[name]; !ok {
				return bakeerr.Wrap(bakeerr.KindDriverRegistration, "add-rule", ruleName,
					fmt.Errorf("rule %q target names unknown node %q", ruleName, n))
			}
		}
	case TargetFile:
		// Literal path, interpolated later; nothing to resolve now.
	}
	return nil
}

// isSpecialSourceName reports whether name is one of the two built-in
// aggregate nodes every graph implicitly provides (spec §4.5 "SOURCES
// / GENERATED-SOURCES").
func isSpecialSourceName(name string) bool {
	return name == "SOURCES" || name == "GENERATED-SOURCES"
}
