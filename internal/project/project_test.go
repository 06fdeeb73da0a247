package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllDependencies_DedupsAndSorts(t *testing.T) {
	p := New("app.widget")
	p.Use = []string{"lib.b", "lib.a"}
	p.UsePrivate = []string{"lib.a", "lib.c"}
	p.UseBuild = []string{"lib.d"}

	assert.Equal(t, []string{"lib.a", "lib.b", "lib.c", "lib.d"}, p.AllDependencies())
}

func TestAddDependent_AccumulatesBackEdges(t *testing.T) {
	dep := New("lib.core")
	a := New("app.one")
	b := New("app.two")

	dep.AddDependent(a)
	dep.AddDependent(b)

	assert.ElementsMatch(t, []*Project{a, b}, dep.Dependents())
}

func TestUnresolvedCounter(t *testing.T) {
	p := New("app.widget")
	p.IncUnresolved()
	p.IncUnresolved()
	assert.Equal(t, 2, p.UnresolvedCount())
	assert.Equal(t, 1, p.DecUnresolved())
	assert.Equal(t, 0, p.DecUnresolved())
}

func TestReplaceWith_PreservesStateAndDependents(t *testing.T) {
	placeholder := NewPlaceholder("lib.core")
	dependent := New("app.widget")
	placeholder.AddDependent(dependent)

	real := New("lib.core")
	real.Type = TypePackage
	real.Path = "/some/path"

	placeholder.ReplaceWith(real)

	assert.False(t, placeholder.Placeholder)
	assert.Equal(t, "/some/path", placeholder.Path)
	assert.Equal(t, []*Project{dependent}, placeholder.Dependents())
}

func TestIDForms(t *testing.T) {
	p := New("app.widget.gui")
	assert.Equal(t, "gui", p.IDBase())
	assert.Equal(t, "app-widget-gui", p.IDDash())
	assert.Equal(t, "app_widget_gui", p.IDUnderscore())
}

func TestSourceAndIncludeDirs(t *testing.T) {
	p := New("app.widget")
	p.Path = "/repo/app"
	p.Sources = []string{"src", "gen"}
	p.Includes = []string{"include"}

	assert.Equal(t, []string{
		filepath.Join("/repo/app", "src"),
		filepath.Join("/repo/app", "gen"),
	}, p.SourceDirs())
	assert.Equal(t, []string{filepath.Join("/repo/app", "include")}, p.IncludeDirs())
}

func TestBinPathAndCachePath(t *testing.T) {
	p := New("app.widget")
	p.Path = "/repo/app"
	assert.Equal(t, filepath.Join("/repo/app", "bin", "x86_64-linux-debug"), p.BinPath("x86_64-linux", "debug"))
	assert.Equal(t, filepath.Join("/repo/app", ".bake_cache"), p.CachePath())
}

func TestNewPlaceholder(t *testing.T) {
	p := NewPlaceholder("lib.core")
	require.True(t, p.Placeholder)
	assert.Equal(t, "lib.core", p.ID)
}
