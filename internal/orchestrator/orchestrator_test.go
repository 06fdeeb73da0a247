package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeconfig"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/driver"
	"github.com/standardbeagle/bake/internal/graph"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
	"github.com/standardbeagle/bake/internal/rules"
)

type fakePlugin struct {
	id         string
	registerFn func(reg *driver.RegistrationContext) error
}

func (f *fakePlugin) ID() string { return f.id }
func (f *fakePlugin) Register(reg *driver.RegistrationContext) error {
	if f.registerFn != nil {
		return f.registerFn(reg)
	}
	reg.Pattern("C-SOURCES", "*.c", nil)
	return reg.Rule("ARTEFACT",
		[]rules.SourceRef{{NodeName: "C-SOURCES"}},
		rules.Target{Kind: rules.TargetFile, File: "artefact.bin"},
		func(ctx *rules.EvalContext, input, output string) error {
			return os.WriteFile(output, []byte("built"), 0o644)
		}, nil)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *pathenv.Env, *graph.Graph) {
	t.Helper()
	home := t.TempDir()
	env := pathenv.Init(home, home, "debug")
	g := graph.New()
	reg := driver.NewRegistry()
	cfg := bakeconfig.Default()
	return New(env, g, reg, cfg, "debug"), env, g
}

func newCProject(t *testing.T, id string) *project.Project {
	t.Helper()
	p := project.New(id)
	p.Path = t.TempDir()
	p.Language = "c"
	p.LanguageDriverID = "lang.c"
	p.Drivers["lang.c"] = &project.DriverBinding{DriverID: "lang.c", Attrs: attr.Table{}}
	require.NoError(t, os.WriteFile(filepath.Join(p.Path, "widget.c"), []byte("int main(){}"), 0o644))
	return p
}

func TestCheckDependencies_UnresolvedHintsBundleRepository(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Config.Bundles["third_party.zlib"] = bakeconfig.BundleRef{Bundle: "vendor"}
	o.Config.BundleRepositories = map[string]bakeconfig.BundleRepository{
		"vendor": {URL: "https://example.invalid/vendor.git", Projects: []string{"third_party.zlib"}},
	}

	p := newCProject(t, "app.widget")
	p.Use = []string{"third_party.zlib"}

	err := o.checkDependencies(p)
	require.Error(t, err)
	assert.True(t, bakeerr.Is(err, bakeerr.KindFilesystem))
	assert.Contains(t, err.Error(), "https://example.invalid/vendor.git")
}

func TestCheckDependencies_UnresolvedWithoutBundleHint(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	p := newCProject(t, "app.widget")
	p.Use = []string{"lib.missing"}

	err := o.checkDependencies(p)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "bundles.toml")
}

func TestCheckDependencies_StandaloneToleratesUnresolved(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	p := newCProject(t, "app.widget")
	p.Standalone = true
	p.Use = []string{"lib.missing"}

	require.NoError(t, o.checkDependencies(p))
}

func TestCheckDependencies_ForcesRebuildWhenDependencyNewer(t *testing.T) {
	o, _, g := newTestOrchestrator(t)

	p := newCProject(t, "app.widget")
	p.Use = []string{"lib.core"}
	artefact := filepath.Join(t.TempDir(), "app_widget")
	require.NoError(t, os.WriteFile(artefact, []byte("old"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(artefact, old, old))
	p.ArtefactPath = artefact

	dep := project.New("lib.core")
	depArtefact := filepath.Join(t.TempDir(), "liblib_core.a")
	require.NoError(t, os.WriteFile(depArtefact, []byte("new"), 0o644))
	dep.ArtefactPath = depArtefact

	g.Resolve("lib.core", nil)
	real, _ := g.Get("lib.core")
	real.ReplaceWith(dep)

	require.NoError(t, o.checkDependencies(p))
	_, err := os.Stat(artefact)
	assert.True(t, os.IsNotExist(err), "stale artefact removed to force a rebuild")
}

func TestBuild_UsesArtefactNamerInterfaceWhenPresent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Registry.Add(&namerPlugin{fakePlugin: fakePlugin{id: "lang.c"}})

	p := newCProject(t, "app.widget")
	require.NoError(t, o.build(p))
	assert.Equal(t, "named-by-interface", p.ArtefactName)
}

// namerPlugin implements driver.ArtefactNamer on top of fakePlugin's
// Register so build() prefers the interface form over a registration
// callback when both could apply.
type namerPlugin struct{ fakePlugin }

func (n *namerPlugin) ArtefactName(ctx *driver.CallContext) (string, error) {
	return "named-by-interface", nil
}

func TestBuild_FallsBackToRegisteredArtefactFnCallback(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Registry.Add(&fakePlugin{
		id: "lang.c",
		registerFn: func(reg *driver.RegistrationContext) error {
			reg.Pattern("C-SOURCES", "*.c", nil)
			reg.OnArtefactName(func(ctx *driver.CallContext) (string, error) {
				return "named-by-callback", nil
			})
			return reg.Rule("ARTEFACT",
				[]rules.SourceRef{{NodeName: "C-SOURCES"}},
				rules.Target{Kind: rules.TargetFile, File: "artefact.bin"},
				func(ctx *rules.EvalContext, input, output string) error {
					return os.WriteFile(output, []byte("built"), 0o644)
				}, nil)
		},
	})

	p := newCProject(t, "app.widget")
	require.NoError(t, o.build(p))
	assert.Equal(t, "named-by-callback", p.ArtefactName)
}

func TestBuild_FallsBackToRegisteredLinkFnCallback(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	var resolvedLib string
	o.Registry.Add(&fakePlugin{
		id: "lang.c",
		registerFn: func(reg *driver.RegistrationContext) error {
			reg.Pattern("C-SOURCES", "*.c", nil)
			reg.OnLinkToLib(func(ctx *driver.CallContext, libName string) (string, error) {
				resolvedLib = libName
				return "", nil
			})
			return reg.Rule("ARTEFACT",
				[]rules.SourceRef{{NodeName: "C-SOURCES"}},
				rules.Target{Kind: rules.TargetFile, File: "artefact.bin"},
				func(ctx *rules.EvalContext, input, output string) error {
					return os.WriteFile(output, []byte("built"), 0o644)
				}, nil)
		},
	})

	p := newCProject(t, "app.widget")
	p.Link = []string{"m"}
	require.NoError(t, o.build(p))
	assert.Equal(t, "m", resolvedLib)
}

func TestBuild_NoLanguageBindingIsNoOp(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	p := project.New("tmpl.basic")
	p.Type = project.TypeTemplate
	p.Path = t.TempDir()
	require.NoError(t, o.build(p))
}

func TestClean_InvokesCleanerAndDrainsRemovals(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	var cleaned bool
	leftoverName := "leftover.tmp"

	p := newCProject(t, "app.widget")
	o.Registry.Add(&cleanerPlugin{
		fakePlugin: fakePlugin{id: "lang.c"},
		cleanFn: func(ctx *driver.CallContext) error {
			cleaned = true
			ctx.Remove(filepath.Join(ctx.Project.Path, leftoverName))
			return nil
		},
	})

	leftover := filepath.Join(p.Path, leftoverName)
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o644))

	require.NoError(t, o.Clean(p, false))

	assert.True(t, cleaned)
	_, err := os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
}

type cleanerPlugin struct {
	fakePlugin
	cleanFn func(ctx *driver.CallContext) error
}

func (c *cleanerPlugin) Clean(ctx *driver.CallContext) error { return c.cleanFn(ctx) }

func TestPostDiscovery_MergesDependeeBlockFromDependencyMeta(t *testing.T) {
	o, env, _ := newTestOrchestrator(t)
	o.Registry.Add(&fakePlugin{id: "lang.c"})

	metaDir := env.MetaDir(env.Home, "lib.core")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "dependee.json"), []byte(`{"link":["pthread"]}`), 0o644))

	p := newCProject(t, "app.widget")
	p.Use = []string{"lib.core"}

	require.NoError(t, o.postDiscovery(p))
	linkVal, ok := p.Drivers["lang.c"].Attrs["link"]
	require.True(t, ok)
	assert.Equal(t, []attr.Value{"pthread"}, linkVal)
}
