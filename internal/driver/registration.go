package driver

import (
	"github.com/standardbeagle/bake/internal/rules"
)

// RegistrationContext is the vtable's registration half (spec §4.4):
// the argument a driver's Register method receives to declare its
// rule-graph nodes, conditions, lifecycle participation, and crawl
// exclusions.
type RegistrationContext struct {
	graph      *rules.Graph
	registry   *Registry
	ignore     []string
	artefactFn func(ctx *CallContext) (string, error)
	linkFn     func(ctx *CallContext, libName string) (string, error)
}

func newRegistrationContext(reg *Registry) *RegistrationContext {
	return &RegistrationContext{graph: rules.NewGraph(), registry: reg}
}

// Graph returns the rule-graph built up by this registration pass, for
// the orchestrator/rule engine to evaluate against later.
func (r *RegistrationContext) Graph() *rules.Graph { return r.graph }

// Ignore returns the accumulated crawl-exclusion path components.
func (r *RegistrationContext) Ignore() []string { return append([]string(nil), r.ignore...) }

// ArtefactFn returns the callback registered via OnArtefactName, or nil
// if the driver instead implements ArtefactNamer directly.
func (r *RegistrationContext) ArtefactFn() func(ctx *CallContext) (string, error) {
	return r.artefactFn
}

// LinkFn returns the callback registered via OnLinkToLib, or nil if the
// driver instead implements LinkResolver directly.
func (r *RegistrationContext) LinkFn() func(ctx *CallContext, libName string) (string, error) {
	return r.linkFn
}

// Pattern registers a Pattern node (spec §4.4 "pattern(name, glob)").
func (r *RegistrationContext) Pattern(name, glob string, cond rules.ConditionFunc) {
	r.graph.AddPattern(name, glob, cond)
}

// File registers a File node (spec §4.4 "file(name, path)").
func (r *RegistrationContext) File(name, path string, cond rules.ConditionFunc) {
	r.graph.AddFile(name, path, cond)
}

// Rule registers a Rule node (spec §4.4 "rule(name, source_spec,
// target_spec, action)").
func (r *RegistrationContext) Rule(name string, source []rules.SourceRef, target rules.Target, action rules.ActionFunc, cond rules.ConditionFunc) error {
	return r.graph.AddRule(name, source, target, action, cond)
}

// DependencyRule registers a DependencyRule node (spec §4.4, §3).
func (r *RegistrationContext) DependencyRule(name string, source []rules.SourceRef, expand rules.ExpandFunc, target rules.Target, action rules.ActionFunc, cond rules.ConditionFunc) error {
	return r.graph.AddDependencyRule(name, source, expand, target, action, cond)
}

// IgnorePath appends a path component to the driver's crawl-exclusion
// list (spec §4.4 "a list of path components to ignore during
// crawling").
func (r *RegistrationContext) IgnorePath(component string) {
	r.ignore = append(r.ignore, component)
}

// OnArtefactName registers the driver's artefact-name callback. Kept
// alongside the ArtefactNamer optional interface (the registration
// style spec.md's vtable describes) so a driver may provide either a
// method or a closure.
func (r *RegistrationContext) OnArtefactName(fn func(ctx *CallContext) (string, error)) {
	r.artefactFn = fn
}

// OnLinkToLib registers the driver's link-name callback.
func (r *RegistrationContext) OnLinkToLib(fn func(ctx *CallContext, libName string) (string, error)) {
	r.linkFn = fn
}

// Import re-enters the host to load another driver by id and merge its
// registrations into this driver's own node list (spec §4.4
// "import(driver_id)... used for driver composition"). The imported
// driver's Register is invoked against a scratch RegistrationContext
// and every node it declares is copied into the caller's graph.
func (r *RegistrationContext) Import(driverID string) error {
	imported, err := r.registry.register(driverID)
	if err != nil {
		return err
	}
	for _, name := range imported.graph.Names() {
		n, _ := imported.graph.Node(name)
		switch n.Kind {
		case rules.KindPattern:
			r.graph.AddPattern(n.Name, n.Glob, n.Condition)
		case rules.KindFile:
			r.graph.AddFile(n.Name, n.FilePath, n.Condition)
		case rules.KindRule:
			_ = r.graph.AddRule(n.Name, n.Source, n.Target, n.Action, n.Condition)
		case rules.KindDependencyRule:
			_ = r.graph.AddDependencyRule(n.Name, n.Source, n.Expand, n.Target, n.Action, n.Condition)
		}
	}
	r.ignore = append(r.ignore, imported.ignore...)
	if r.artefactFn == nil {
		r.artefactFn = imported.artefactFn
	}
	if r.linkFn == nil {
		r.linkFn = imported.linkFn
	}
	return nil
}
