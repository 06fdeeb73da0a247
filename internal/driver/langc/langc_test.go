package langc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/driver"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
	"github.com/standardbeagle/bake/internal/rules"
)

func TestDriver_RegisterDeclaresSourcesObjectsArtefact(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}

	r := driver.NewRegistry()
	r.Add(d)
	loaded, _, loadErr := r.Load("lang.c")
	require.NoError(t, loadErr)

	names := loaded.Graph().Names()
	assert.Contains(t, names, "C-SOURCES")
	assert.Contains(t, names, "OBJECTS")
	assert.Contains(t, names, "ARTEFACT")
}

func TestObjectPath_MirrorsRelativeLayoutUnderCache(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}
	ctx := &rules.EvalContext{Root: "/proj"}

	out, err := d.objectPath(ctx, rules.File{Path: "/proj/src/widget.c", Name: "widget.c"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", ".bake_cache", "obj", "src", "widget.o"), out)
}

func TestObjectPath_FallsBackToNameWhenNotUnderRoot(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}
	ctx := &rules.EvalContext{Root: "/proj"}

	out, err := d.objectPath(ctx, rules.File{Path: "/elsewhere/widget.c", Name: "widget.c"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", ".bake_cache", "obj", "widget.o"), out)
}

func TestLinkOrArchive_NoResolvedOutputErrors(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}
	ctx := &rules.EvalContext{Root: "/proj", ProjectID: "app.widget"}

	err := d.linkOrArchive(ctx, "a.o b.o", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no single resolved output path")
}

func TestCompileOne_MissingCompilerWrapsError(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "definitely-not-a-real-compiler", ext: ".c"}
	ctx := &rules.EvalContext{Root: t.TempDir(), ProjectID: "app.widget"}

	err := d.compileOne(ctx, "in.c", "out.o")
	require.Error(t, err)
}

func TestArtefactName_ApplicationVsPackage(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}

	app := project.New("app.widget")
	app.Type = project.TypeApplication
	appCtx := driver.NewCallContext(app, "lang.c", "debug", &pathenv.Env{}, attr.Table{}, nil, new([]string))
	name, err := d.ArtefactName(appCtx)
	require.NoError(t, err)
	assert.Equal(t, "app_widget", name)

	lib := project.New("lib.core")
	lib.Type = project.TypePackage
	libCtx := driver.NewCallContext(lib, "lang.c", "debug", &pathenv.Env{}, attr.Table{}, nil, new([]string))
	name, err = d.ArtefactName(libCtx)
	require.NoError(t, err)
	assert.Equal(t, "liblib_core.a", name)
}

func TestLinkToLib_ResolvesViaLookup(t *testing.T) {
	d := &Driver{id: "lang.c", compiler: "cc", ext: ".c"}

	core := project.New("lib.core")
	core.ArtefactPath = "/home/lib/liblib_core.a"
	lookup := func(id string) (*project.Project, bool) {
		if id == "lib.core" {
			return core, true
		}
		return nil, false
	}

	app := project.New("app.widget")
	ctx := driver.NewCallContext(app, "lang.c", "debug", &pathenv.Env{}, attr.Table{}, lookup, new([]string))

	path, err := d.LinkToLib(ctx, "lib.core")
	require.NoError(t, err)
	assert.Equal(t, "/home/lib/liblib_core.a", path)

	_, err = d.LinkToLib(ctx, "lib.missing")
	require.Error(t, err)
}
