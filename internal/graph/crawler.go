// Package graph implements project discovery (spec §4.6): walking a
// directory tree for project.json manifests, building the dependency
// DAG with the placeholder pattern, and the Kahn-style topological
// walk the orchestrator drives builds with.
package graph

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/project"
)

// reservedDirNames are skipped once inside an already-discovered
// project (spec §4.6); outside a project they are ordinary,
// recursable directories.
var reservedDirNames = map[string]bool{
	"src": true, "include": true, "config": true, "data": true,
	"test": true, "etc": true, "lib": true, "bin": true,
	"install": true, "examples": true, ".bake_cache": true,
}

// Graph is the crawler's result: projects indexed by id (the "nodes"
// bucket, ordered for deterministic walks) plus an unordered "leaves"
// bucket for applications/templates/tools (spec §4.6 "Two buckets").
type Graph struct {
	nodes  map[string]*project.Project
	leaves []*project.Project
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*project.Project)}
}

// Get returns the project registered under id, if any.
func (g *Graph) Get(id string) (*project.Project, bool) {
	p, ok := g.nodes[id]
	return p, ok
}

// All returns every project (nodes then leaves) in a stable order.
func (g *Graph) All() []*project.Project {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	// Leaves are also indexed in nodes; list each of them once, after
	// the packages.
	leaf := make(map[*project.Project]bool, len(g.leaves))
	for _, p := range g.leaves {
		leaf[p] = true
	}
	out := make([]*project.Project, 0, len(g.nodes)+len(g.leaves))
	for _, id := range ids {
		if p := g.nodes[id]; !leaf[p] {
			out = append(out, p)
		}
	}
	out = append(out, g.leaves...)
	return out
}

// Crawl walks root for project.json manifests, per spec §4.6. It
// inserts no placeholders itself: Finalize (through Resolve) does that
// for every "use" reference whose target was not discovered.
// ignorePaths supplements the built-in reserved-name list with a
// driver's own crawl exclusions (spec §4.4 "a list of path components
// to ignore during crawling").
func Crawl(root string, ignorePaths []string) (*Graph, error) {
	g := New()
	ignore := make(map[string]bool, len(ignorePaths))
	for _, p := range ignorePaths {
		ignore[p] = true
	}

	visited := make(map[string]bool)
	var walk func(dir string, insideProject bool) error
	walk = func(dir string, insideProject bool) error {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return nil // unresolvable symlink; skip
		}
		if visited[real] {
			return nil
		}
		visited[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}

		manifestPath := filepath.Join(dir, "project.json")
		isProject := fileExists(manifestPath)
		if isProject {
			if err := g.addDiscovered(dir); err != nil {
				return err
			}
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			name := e.Name()
			if name == "" || name[0] == '.' || name == "bake" {
				continue
			}
			if ignore[name] {
				continue
			}
			if (insideProject || isProject) && reservedDirNames[name] {
				continue
			}
			if err := walk(filepath.Join(dir, name), insideProject || isProject); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, false); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) addDiscovered(dir string) error {
	p, err := project.LoadProject(dir)
	if err != nil {
		obs.Crawler("skipping %s: %v", dir, err)
		return nil
	}

	if existing, ok := g.nodes[p.ID]; ok {
		if !existing.Placeholder {
			return ambiguousDependencyError(p.ID, existing.Path, p.Path)
		}
		existing.ReplaceWith(p)
		g.classify(existing)
		return nil
	}

	g.nodes[p.ID] = p
	g.classify(p)
	return nil
}

// classify adds real (non-placeholder), non-package-type projects to
// the leaves bucket in addition to the id index (spec §4.6 "leaves...
// for applications and templates and other non-package types").
func (g *Graph) classify(p *project.Project) {
	if p.Placeholder {
		return
	}
	if p.Type != project.TypePackage {
		g.leaves = append(g.leaves, p)
	}
}

// Resolve looks up id, inserting a placeholder if not yet discovered,
// and records dep as a dependent of it (spec §4.6 "Placeholder
// pattern").
func (g *Graph) Resolve(id string, dependent *project.Project) *project.Project {
	p, ok := g.nodes[id]
	if !ok {
		p = project.NewPlaceholder(id)
		g.nodes[id] = p
	}
	if dependent != nil {
		p.AddDependent(dependent)
	}
	return p
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// MatchIgnored reports whether rel (a path relative to some project
// root) matches one of the driver-declared ignore patterns, using
// doublestar so drivers can ignore glob-shaped subtrees, not just bare
// names.
func MatchIgnored(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
