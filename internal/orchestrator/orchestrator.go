// Package orchestrator drives the nine per-project build phases (spec
// §4.8), wiring together the project model, driver host, rule engine,
// and installer for one build run.
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeconfig"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/driver"
	"github.com/standardbeagle/bake/internal/graph"
	"github.com/standardbeagle/bake/internal/installer"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
	"github.com/standardbeagle/bake/internal/rules"
)

// Orchestrator wires together one build run over one Graph.
type Orchestrator struct {
	Env        *pathenv.Env
	Graph      *graph.Graph
	Registry   *driver.Registry
	Installer  *installer.Installer
	Config     *bakeconfig.Config
	ConfigName string // "debug", "release", ...

	removals  map[string]*[]string
	generated map[string]rules.FileList // per-project GENERATED-SOURCES output, set by generate()
}

// New constructs an Orchestrator for one build.
func New(env *pathenv.Env, g *graph.Graph, reg *driver.Registry, cfg *bakeconfig.Config, configName string) *Orchestrator {
	return &Orchestrator{
		Env: env, Graph: g, Registry: reg, Installer: installer.New(env),
		Config: cfg, ConfigName: configName,
		removals: make(map[string]*[]string), generated: make(map[string]rules.FileList),
	}
}

// Walk runs Build over every project in the graph's topological order
// (spec §4.6 "Walk algorithm").
func (o *Orchestrator) Walk() error {
	return graph.Walk(o.Graph, func(p *project.Project) error {
		return o.Build(p)
	})
}

// lookup adapts Graph.Get to driver.LookupFunc.
func (o *Orchestrator) lookup(id string) (*project.Project, bool) { return o.Graph.Get(id) }

// bindings returns a project's driver bindings sorted by id, so
// multi-driver projects (a language driver plus one or more codegen
// drivers) run their lifecycle callbacks in a deterministic order.
func bindings(p *project.Project) []*project.DriverBinding {
	ids := make([]string, 0, len(p.Drivers))
	for id := range p.Drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*project.DriverBinding, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.Drivers[id])
	}
	return out
}

func (o *Orchestrator) callContext(p *project.Project, b *project.DriverBinding) *driver.CallContext {
	r, ok := o.removals[p.ID]
	if !ok {
		r = &[]string{}
		o.removals[p.ID] = r
	}
	return driver.NewCallContext(p, b.DriverID, o.ConfigName, o.Env, b.Attrs, o.lookup, r)
}

// Build runs the nine ordered phases from spec §4.8 for one project.
func (o *Orchestrator) Build(p *project.Project) error {
	obs.Orchestrator("building %s", p.ID)

	if err := o.preDiscovery(p); err != nil {
		return err
	}
	if err := o.postDiscovery(p); err != nil {
		return err
	}
	if err := o.checkDependencies(p); err != nil {
		return err
	}
	if err := o.generate(p); err != nil {
		return err
	}
	if err := o.clearAndInstallPrebuild(p); err != nil {
		return err
	}
	if err := o.prebuild(p); err != nil {
		return err
	}
	if err := o.build(p); err != nil {
		return err
	}
	if err := o.postbuild(p); err != nil {
		return err
	}
	return o.installPostbuild(p)
}

// preDiscovery is phase 1: link a template project into the
// environment's templates directory, or install metadata for a public
// project. Driver-config JSON blocks are already parsed at LoadProject
// time, and bundle configuration is read once by bakeconfig.Load and
// consulted only in checkDependencies.
func (o *Orchestrator) preDiscovery(p *project.Project) error {
	if p.Type == project.TypeTemplate {
		return o.installTemplateLink(p)
	}
	if p.Public {
		if err := o.Installer.InstallMetadata(p); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) installTemplateLink(p *project.Project) error {
	dst := filepath.Join(o.Env.TemplatesDir(), p.ID)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-template", p.ID, err)
	}
	_ = os.Remove(dst)
	if err := os.Symlink(p.Path, dst); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-template", p.ID, err)
	}
	return nil
}

// postDiscovery is phase 2: initialize each driver, then merge
// dependee-contributed configuration from every dependency's
// installed meta directory (spec §4.8 step 2, §4.2 dependee merge).
func (o *Orchestrator) postDiscovery(p *project.Project) error {
	for _, b := range bindings(p) {
		reg, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		ctx := &attr.Context{
			ProjectID: p.ID, Language: p.Language, Target: o.Env.PlatformTriple,
			Config: o.ConfigName, Locate: o.locateFunc(),
		}
		attrs, err := attr.ParseObject(b.Raw, ctx)
		if err != nil {
			return bakeerr.Wrap(bakeerr.KindConfigConflict, "parse-attrs", p.ID, err)
		}
		b.Attrs = attrs
		_ = reg

		if init, ok := plug.(driver.Initializer); ok {
			if err := init.Init(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "init", p.ID, err)
			}
		}
	}

	for _, depID := range p.AllDependencies() {
		meta := o.Env.MetaDir(o.Env.Home, depID)
		dependee, err := loadDependeeBlock(meta)
		if err != nil {
			return err
		}
		if dependee == nil {
			continue
		}
		for _, b := range bindings(p) {
			merged, err := attr.MergeDependee(b.Attrs, dependee)
			if err != nil {
				return err
			}
			b.Attrs = merged
		}
	}
	return nil
}

func (o *Orchestrator) locateFunc() attr.LocateFunc {
	return func(id, kind string) string {
		return o.Env.Locate(id, locateKind(kind))
	}
}

func locateKind(name string) pathenv.Kind {
	switch name {
	case "include":
		return pathenv.KindInclude
	case "etc":
		return pathenv.KindEtc
	case "lib":
		return pathenv.KindLib
	case "app":
		return pathenv.KindApp
	case "bin":
		return pathenv.KindAnyBinary
	case "src":
		return pathenv.KindSource
	case "devsrc":
		return pathenv.KindDevSource
	case "template":
		return pathenv.KindTemplate
	case "repository":
		return pathenv.KindRepository
	default:
		return pathenv.KindMeta
	}
}

// checkDependencies is phase 3: locate every "use" dependency in the
// environment; if any is newer than this project's artefact, delete
// the artefact to force a rebuild; if any is unresolved, fall back to
// standalone mode or abort (spec §4.8 step 3).
func (o *Orchestrator) checkDependencies(p *project.Project) error {
	artefact := p.ArtefactPath
	var artefactMTime int64
	if artefact != "" {
		if info, err := os.Stat(artefact); err == nil {
			artefactMTime = info.ModTime().UnixNano()
		}
	}

	for _, depID := range p.AllDependencies() {
		dep, ok := o.Graph.Get(depID)
		found := ok && !dep.Placeholder
		if !found {
			path := o.Env.Locate(depID, pathenv.KindAnyBinary)
			found = path != ""
		}
		if !found {
			if p.Standalone {
				obs.Orchestrator("%s: dependency %s unresolved, standalone mode", p.ID, depID)
				continue
			}
			if repo, ok := o.Config.BundleRepositoryFor(depID); ok {
				return bakeerr.Wrap(bakeerr.KindFilesystem, "check-dependencies", p.ID,
					fmt.Errorf("dependency %q not found; bundles.toml says it ships from %s (fetch it manually, bake does not fetch bundles)", depID, repo.URL))
			}
			return bakeerr.Wrap(bakeerr.KindFilesystem, "check-dependencies", p.ID,
				fmt.Errorf("dependency %q not found and project is not standalone", depID))
		}
		if ok && artefact != "" && dep.ArtefactPath != "" {
			if info, err := os.Stat(dep.ArtefactPath); err == nil && info.ModTime().UnixNano() > artefactMTime {
				obs.Orchestrator("%s: dependency %s is newer, forcing rebuild", p.ID, depID)
				_ = os.Remove(artefact)
			}
		}
	}
	return nil
}

// generate is phase 4: invoke each driver's generate callback, then
// evaluate the GENERATED-SOURCES subtree if the language driver
// declares one.
func (o *Orchestrator) generate(p *project.Project) error {
	for _, b := range bindings(p) {
		reg, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		if gen, ok := plug.(driver.Generator); ok {
			if err := gen.Generate(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "generate", p.ID, err)
			}
		}
		if b.DriverID != p.LanguageDriverID {
			continue
		}
		evalCtx := &rules.EvalContext{
			ProjectID:  p.ID,
			Root:       p.Path,
			SourceDirs: p.SourceDirs(),
			Attr: &attr.Context{
				ProjectID: p.ID, Language: p.Language, Target: o.Env.PlatformTriple,
				Config: o.ConfigName, DriverAttrs: b.Attrs, Locate: o.locateFunc(),
			},
		}
		gensrc, err := rules.EvaluateGeneratedSources(reg.Graph(), evalCtx)
		if err != nil {
			return bakeerr.Wrap(bakeerr.KindDriverCallback, "rule-engine:GENERATED-SOURCES", p.ID, err)
		}
		if gensrc != nil {
			o.generated[p.ID] = gensrc
		}
	}
	return nil
}

// clearAndInstallPrebuild is phase 5. It runs install-prebuild only;
// outputs an earlier install left for the project are not wiped first.
func (o *Orchestrator) clearAndInstallPrebuild(p *project.Project) error {
	return o.Installer.InstallPrebuild(p)
}

// prebuild is phase 6.
func (o *Orchestrator) prebuild(p *project.Project) error {
	for _, b := range bindings(p) {
		_, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		if pb, ok := plug.(driver.Prebuilder); ok {
			if err := pb.Prebuild(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "prebuild", p.ID, err)
			}
		}
	}
	return nil
}

// build is phase 7: resolve link targets, invoke each driver's build
// callback, then run the rule engine on ARTEFACT.
func (o *Orchestrator) build(p *project.Project) error {
	langBinding := p.Binding(p.LanguageDriverID)
	if langBinding == nil {
		return nil // e.g. a template project: nothing to compile
	}
	reg, plug, err := o.Registry.Load(langBinding.DriverID)
	if err != nil {
		return err
	}
	ctx := o.callContext(p, langBinding)

	if resolver, ok := plug.(driver.LinkResolver); ok {
		if err := o.resolveLinks(p, ctx, resolver); err != nil {
			return err
		}
	} else if fn := reg.LinkFn(); fn != nil {
		if err := o.resolveLinks(p, ctx, linkFnResolver(fn)); err != nil {
			return err
		}
	}

	for _, b := range bindings(p) {
		_, bp, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		if builder, ok := bp.(driver.Builder); ok {
			if err := builder.Build(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "build", p.ID, err)
			}
		}
	}

	artefactName := p.IDUnderscore()
	if namer, ok := plug.(driver.ArtefactNamer); ok {
		name, err := namer.ArtefactName(ctx)
		if err == nil && name != "" {
			artefactName = name
		}
	} else if fn := reg.ArtefactFn(); fn != nil {
		if name, err := fn(ctx); err == nil && name != "" {
			artefactName = name
		}
	}
	p.ArtefactName = artefactName
	p.ArtefactPath = filepath.Join(p.BinPath(o.Env.PlatformTriple, o.ConfigName), artefactName)

	artefactMTime := time.Time{}
	if info, statErr := os.Stat(p.ArtefactPath); statErr == nil {
		artefactMTime = info.ModTime()
	}
	evalCtx := &rules.EvalContext{
		ProjectID:        p.ID,
		Root:             p.Path,
		SourceDirs:       p.SourceDirs(),
		GeneratedSources: o.generated[p.ID],
		Attr: &attr.Context{
			ProjectID: p.ID, Language: p.Language, Target: o.Env.PlatformTriple,
			Config: o.ConfigName, DriverAttrs: langBinding.Attrs, Locate: o.locateFunc(),
		},
		// Seeds the root evaluation's inherited list with the expected
		// artefact path so a "$OBJECTS"-style target entry on the
		// ARTEFACT rule has something to inherit.
		Inherited: rules.FileList{{
			Base: filepath.Dir(p.ArtefactPath), Name: filepath.Base(p.ArtefactPath),
			Path: p.ArtefactPath, MTime: artefactMTime,
		}},
	}
	out, err := rules.Evaluate(reg.Graph(), "ARTEFACT", evalCtx)
	if err != nil {
		p.Error = true
		return bakeerr.Wrap(bakeerr.KindDriverCallback, "rule-engine:ARTEFACT", p.ID, err)
	}
	if len(out) > 0 {
		p.Changed = true
		p.FreshlyBaked = true
	}
	return nil
}

// linkFnResolver adapts an OnLinkToLib-registered closure to the
// LinkResolver interface, so resolveLinks has one call shape regardless
// of whether a driver supplied a method or a registration-time callback.
type linkFnResolver func(ctx *driver.CallContext, libName string) (string, error)

func (fn linkFnResolver) LinkToLib(ctx *driver.CallContext, libName string) (string, error) {
	return fn(ctx, libName)
}

// resolveLinks resolves the project's link attribute to actual
// library paths and copies them into the environment's lib path under
// renamed filenames (spec §4.8 step 7).
func (o *Orchestrator) resolveLinks(p *project.Project, ctx *driver.CallContext, resolver driver.LinkResolver) error {
	for _, libName := range p.Link {
		libPath, err := resolver.LinkToLib(ctx, libName)
		if err != nil {
			return bakeerr.Wrap(bakeerr.KindDriverCallback, "link-to-lib", p.ID, err)
		}
		if libPath == "" {
			continue
		}
		renamed := fmt.Sprintf("lib%s_%s%s", p.IDUnderscore(), libName, filepath.Ext(libPath))
		dst := filepath.Join(o.Env.LibDir(), renamed)
		if err := copyFile(libPath, dst); err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "link-copy", p.ID, err)
		}
	}
	return nil
}

// postbuild is phase 8.
func (o *Orchestrator) postbuild(p *project.Project) error {
	for _, b := range bindings(p) {
		_, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		if pb, ok := plug.(driver.Postbuilder); ok {
			if err := pb.Postbuild(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "postbuild", p.ID, err)
			}
		}
	}
	return nil
}

// installPostbuild is phase 9.
func (o *Orchestrator) installPostbuild(p *project.Project) error {
	return o.Installer.InstallPostbuild(p, o.Env.PlatformTriple, o.ConfigName)
}

// Clean runs the clean phase instead of build: invokes each driver's
// clean callback, removes the project's cache directory, removes bin
// outputs (all platforms when full is true, else only the current
// one), and deletes every path registered via Remove() (spec §4.8
// "clean phase").
func (o *Orchestrator) Clean(p *project.Project, full bool) error {
	for _, b := range bindings(p) {
		_, plug, err := o.Registry.Load(b.DriverID)
		if err != nil {
			return err
		}
		if cleaner, ok := plug.(driver.Cleaner); ok {
			if err := cleaner.Clean(o.callContext(p, b)); err != nil {
				return bakeerr.Wrap(bakeerr.KindDriverCallback, "clean", p.ID, err)
			}
		}
	}

	if err := os.RemoveAll(p.CachePath()); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "clean", p.ID, err)
	}

	binRoot := filepath.Join(p.Path, "bin")
	if full {
		_ = os.RemoveAll(binRoot)
	} else {
		_ = os.RemoveAll(p.BinPath(o.Env.PlatformTriple, o.ConfigName))
	}

	if r, ok := o.removals[p.ID]; ok {
		for _, path := range *r {
			_ = os.Remove(path)
		}
		delete(o.removals, p.ID)
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
