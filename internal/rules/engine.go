package rules

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/obs"
)

// EvalContext carries everything a node evaluation needs: the
// project's filesystem root and source dirs for SOURCES expansion, the generated-sources list produced by an earlier
// generate phase, the attribute-interpolation context for globs and
// literal target paths, and the project id (for logging).
type EvalContext struct {
	ProjectID        string
	Root             string
	SourceDirs       []string
	GeneratedSources FileList
	Attr             *attr.Context

	// Inherited seeds the root evaluation's inherited file-list (spec
	// §4.8 step 7: "run the rule engine on ARTEFACT with a
	// single-element filelist containing the expected artefact path"),
	// so a "$NAME" target entry at the root has something to inherit
	// even though nothing called step(rootName, ...) itself.
	Inherited FileList
}

// Evaluate walks the graph rooted at rootName using the demand-driven
// algorithm from spec §4.5, returning the root's resulting File-list.
func Evaluate(g *Graph, rootName string, ctx *EvalContext) (FileList, error) {
	ev := &evaluator{graph: g, ctx: ctx, visiting: make(map[string]bool)}
	return ev.step(rootName, ctx.Inherited)
}

// EvaluateGeneratedSources evaluates a driver's own GENERATED-SOURCES
// rule subtree directly, bypassing step's synthesis of that reserved
// name (which always returns EvalContext.GeneratedSources rather than
// looking the node up) so a driver-declared GENERATED-SOURCES node
// actually runs (spec §4.8 step 4: "also evaluate any GENERATED-SOURCES
// rule subtree"). Returns nil, nil if the driver declared no such node.
func EvaluateGeneratedSources(g *Graph, ctx *EvalContext) (FileList, error) {
	n, ok := g.Node("GENERATED-SOURCES")
	if !ok {
		return nil, nil
	}
	ev := &evaluator{graph: g, ctx: ctx, visiting: make(map[string]bool)}
	return ev.evalNode("GENERATED-SOURCES", n, nil)
}

type evaluator struct {
	graph    *Graph
	ctx      *EvalContext
	visiting map[string]bool // cycle guard
}

// step evaluates one named node with inherited output list inh
// (spec §4.5 steps 1-5). Special names SOURCES/GENERATED-SOURCES are
// synthesized rather than looked up in the graph.
func (ev *evaluator) step(name string, inh FileList) (FileList, error) {
	switch name {
	case "SOURCES":
		return ev.expandSources(), nil
	case "GENERATED-SOURCES":
		return ev.ctx.GeneratedSources, nil
	}

	n, ok := ev.graph.Node(name)
	if !ok {
		return nil, bakeerr.Wrap(bakeerr.KindAmbiguousDependency, "evaluate", ev.ctx.ProjectID,
			errUnknownNode(name))
	}
	return ev.evalNode(name, n, inh)
}

// evalNode runs steps 1-5 of spec §4.5 for an already-resolved node. It
// is split out from step so EvaluateGeneratedSources can run a node
// directly without going through step's reserved-name synthesis.
func (ev *evaluator) evalNode(name string, n *Node, inh FileList) (FileList, error) {
	if ev.visiting[name] {
		return nil, bakeerr.Wrap(bakeerr.KindCycle, "evaluate", ev.ctx.ProjectID, errCycle(name))
	}
	ev.visiting[name] = true
	defer delete(ev.visiting, name)

	// Step 1: condition.
	if n.Condition != nil && !n.Condition(ev.ctx) {
		return nil, nil
	}

	// Step 2: Pattern/File nodes expand their own glob/path.
	var own FileList
	switch n.Kind {
	case KindPattern:
		own = ev.expandPattern(n.Glob)
		if len(own) == 0 {
			own = inh
		}
		return own, nil
	case KindFile:
		own = ev.expandFile(n.FilePath)
		if len(own) == 0 {
			own = inh
		}
		return own, nil
	}

	// Rule / DependencyRule: steps 3-4.
	source := n.Source
	if n.Kind == KindDependencyRule && n.Expand != nil {
		extra, err := n.Expand(ev.ctx)
		if err != nil {
			return nil, bakeerr.Wrap(bakeerr.KindDriverCallback, "expand", ev.ctx.ProjectID, err)
		}
		source = append(append([]SourceRef(nil), source...), extra...)
	}

	inputs, err := ev.collectInputs(name, source)
	if err != nil {
		return nil, err
	}

	return ev.runRule(n, inputs, inh)
}

func errUnknownNode(name string) error {
	return &unknownNodeError{name: name}
}

type unknownNodeError struct{ name string }

func (e *unknownNodeError) Error() string { return "unknown rule-graph node: " + e.name }

func errCycle(name string) error { return &cycleError{name: name} }

type cycleError struct{ name string }

func (e *cycleError) Error() string { return "cycle detected evaluating node: " + e.name }

// collectInputs evaluates each declared source in order, inline
// patterns directly and node references recursively, and unions the
// results (spec §4.5 step 3).
func (ev *evaluator) collectInputs(ownerName string, source []SourceRef) (FileList, error) {
	var all FileList
	for _, s := range source {
		if s.NodeName == "" {
			all = Union(all, ev.expandPattern(s.Pattern))
			continue
		}
		out, err := ev.step(s.NodeName, nil)
		if err != nil {
			return nil, err
		}
		all = Union(all, out)
	}
	return all, nil
}

// runRule executes step 4: Map targets rebuild per-input; Pattern/File
// targets aggregate N inputs into one rebuild of the resolved targets.
func (ev *evaluator) runRule(n *Node, inputs FileList, inh FileList) (FileList, error) {
	switch n.Target.Kind {
	case TargetMap:
		return ev.runMapTarget(n, inputs)
	default:
		return ev.runAggregateTarget(n, inputs, inh)
	}
}

func (ev *evaluator) runMapTarget(n *Node, inputs FileList) (FileList, error) {
	out := make(FileList, 0, len(inputs))
	for _, in := range inputs {
		outputPath, err := n.Target.Map(ev.ctx, in)
		if err != nil {
			return nil, bakeerr.Wrap(bakeerr.KindDriverCallback, "target-map", ev.ctx.ProjectID, err)
		}
		outMTime := mtimeOf(outputPath)
		if outMTime.IsZero() || in.MTime.After(outMTime) {
			obs.RuleEngine("rebuild %s -> %s (rule %s)", in.Path, outputPath, n.Name)
			if n.Action != nil {
				if err := n.Action(ev.ctx, in.Path, outputPath); err != nil {
					return nil, bakeerr.Wrap(bakeerr.KindDriverCallback, n.Name, ev.ctx.ProjectID, err)
				}
			}
			outMTime = mtimeOf(outputPath)
			if outMTime.IsZero() {
				outMTime = time.Now()
			}
		}
		out = append(out, File{
			Base: filepath.Dir(outputPath), Name: filepath.Base(outputPath),
			Path: outputPath, MTime: outMTime,
		})
	}
	return out, nil
}

// runAggregateTarget implements the N-to-1 (Pattern/File target) case.
// When the target names inherited nodes (a "$NAME" entry) and an
// inherited list was actually supplied, that inherited list is used
// as-is without re-matching — the precedence this module's Open
// Question resolved in favor of (see DESIGN.md).
func (ev *evaluator) runAggregateTarget(n *Node, inputs FileList, inh FileList) (FileList, error) {
	var targets FileList
	usedInherited := false

	if n.Target.Kind == TargetFile {
		path, err := attr.Interpolate(n.Target.File, ev.ctx.Attr)
		if err != nil {
			return nil, err
		}
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(ev.ctx.Root, full)
		}
		targets = FileList{{Base: filepath.Dir(full), Name: filepath.Base(full), Path: full, MTime: mtimeOf(full)}}
	} else {
		for _, ref := range n.Target.Nodes {
			if strings.HasPrefix(ref, "$") {
				if inh != nil {
					targets = Union(targets, inh)
					usedInherited = true
					continue
				}
				ref = strings.TrimPrefix(ref, "$")
			}
			resolved, err := ev.step(ref, nil)
			if err != nil {
				return nil, err
			}
			targets = Union(targets, resolved)
		}
	}

	shouldBuild := len(targets) == 0
	latestInput := inputs.MaxMTime()
	if !shouldBuild {
		for _, t := range targets {
			if t.MTime.IsZero() || latestInput.After(t.MTime) {
				shouldBuild = true
				break
			}
		}
	}
	if !shouldBuild {
		for _, in := range inputs {
			if in.MTime.IsZero() {
				shouldBuild = true
				break
			}
		}
	}

	if shouldBuild && len(inputs) > 0 && n.Action != nil {
		sources := strings.Join(inputs.Paths(), " ")
		var outPath string
		if len(targets) == 1 {
			outPath = targets[0].Path
		}
		obs.RuleEngine("rebuild [%s] -> %q (rule %s)", sources, outPath, n.Name)
		if err := n.Action(ev.ctx, sources, outPath); err != nil {
			return nil, bakeerr.Wrap(bakeerr.KindDriverCallback, n.Name, ev.ctx.ProjectID, err)
		}
		// Re-stat: the action may have created the target(s) for the
		// first time.
		for i := range targets {
			targets[i].MTime = mtimeOf(targets[i].Path)
		}
	}

	if usedInherited {
		return targets, nil
	}
	return targets, nil
}

// expandSources expands the implicit SOURCES node: every source
// directory's files, recursively, merged with GENERATED-SOURCES (spec
// §4.5 "SOURCES / GENERATED-SOURCES").
func (ev *evaluator) expandSources() FileList {
	var all FileList
	for _, dir := range ev.ctx.SourceDirs {
		all = Union(all, walkDir(dir))
	}
	return Union(all, ev.ctx.GeneratedSources)
}

func (ev *evaluator) expandPattern(glob string) FileList {
	if glob == "" {
		return nil
	}
	interpolated, err := attr.Interpolate(glob, ev.ctx.Attr)
	if err != nil {
		return nil
	}
	matches, err := doublestar.Glob(os.DirFS(ev.ctx.Root), interpolated)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	out := make(FileList, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(ev.ctx.Root, m)
		out = append(out, File{Base: ev.ctx.Root, Name: filepath.Base(m), Path: full, MTime: mtimeOf(full)})
	}
	return out
}

func (ev *evaluator) expandFile(path string) FileList {
	if path == "" {
		return nil
	}
	interpolated, err := attr.Interpolate(path, ev.ctx.Attr)
	if err != nil {
		return nil
	}
	full := interpolated
	if !filepath.IsAbs(full) {
		full = filepath.Join(ev.ctx.Root, full)
	}
	// A File node always contributes one entry, even when its target
	// does not yet exist on disk (spec §4.5 step 2: "File node:
	// interpolate the path; emit one entry with that path") — a zero
	// MTime entry is what forces the owning rule to rebuild.
	return FileList{{Base: filepath.Dir(full), Name: filepath.Base(full), Path: full, MTime: mtimeOf(full)}}
}

func mtimeOf(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func walkDir(dir string) FileList {
	var out FileList
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, File{Base: dir, Name: filepath.Base(path), Path: path, MTime: info.ModTime()})
		return nil
	})
	return out
}
