package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/project"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.json"), []byte(content), 0o644))
}

func TestCrawl_DiscoversNestedProjects(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "lib", "core"), `{"id": "lib.core", "type": "package"}`)
	writeManifest(t, filepath.Join(root, "app", "widget"), `{"id": "app.widget", "type": "application", "value": {"use": ["lib.core"]}}`)

	g, err := Crawl(root, nil)
	require.NoError(t, err)

	core, ok := g.Get("lib.core")
	require.True(t, ok)
	assert.False(t, core.Placeholder)

	widget, ok := g.Get("app.widget")
	require.True(t, ok)
	assert.Equal(t, []string{"lib.core"}, widget.Use)
}

func TestCrawl_LeavesBucketExcludesPackages(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "lib", "core"), `{"id": "lib.core", "type": "package"}`)
	writeManifest(t, filepath.Join(root, "app", "widget"), `{"id": "app.widget", "type": "application"}`)

	g, err := Crawl(root, nil)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, p := range g.All() {
		ids[p.ID] = true
	}
	assert.True(t, ids["lib.core"])
	assert.True(t, ids["app.widget"])

	require.Len(t, g.leaves, 1)
	assert.Equal(t, "app.widget", g.leaves[0].ID)
}

func TestCrawl_SkipsReservedDirNamesInsideProject(t *testing.T) {
	root := t.TempDir()
	// A project.json nested under a project's reserved "lib" directory
	// must not be discovered as its own project.
	writeManifest(t, filepath.Join(root, "app"), `{"id": "app.widget", "type": "application"}`)
	writeManifest(t, filepath.Join(root, "app", "lib", "vendored"), `{"id": "app.vendored", "type": "package"}`)

	g, err := Crawl(root, nil)
	require.NoError(t, err)

	_, ok := g.Get("app.vendored")
	assert.False(t, ok, "project.json under a reserved directory name must not be discovered")
}

func TestCrawl_AmbiguousDuplicateIDErrors(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "one"), `{"id": "app.widget"}`)
	writeManifest(t, filepath.Join(root, "two"), `{"id": "app.widget"}`)

	_, err := Crawl(root, nil)
	require.Error(t, err)
	assert.True(t, bakeerr.Is(err, bakeerr.KindAmbiguousDependency))
}

func TestCrawl_IgnoredDirNameSkipped(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "vendor", "thing"), `{"id": "vendor.thing"}`)

	g, err := Crawl(root, []string{"vendor"})
	require.NoError(t, err)
	_, ok := g.Get("vendor.thing")
	assert.False(t, ok)
}

func TestResolve_InsertsPlaceholderAndRecordsDependent(t *testing.T) {
	g := New()
	dependent := project.New("app.widget")

	p := g.Resolve("lib.missing", dependent)
	assert.True(t, p.Placeholder)
	assert.Equal(t, []*project.Project{dependent}, p.Dependents())

	// Resolving again returns the same placeholder instance.
	p2 := g.Resolve("lib.missing", nil)
	assert.Same(t, p, p2)
}

func TestMatchIgnored(t *testing.T) {
	assert.True(t, MatchIgnored([]string{"build/**"}, "build/obj/a.o"))
	assert.False(t, MatchIgnored([]string{"build/**"}, "src/a.c"))
}
