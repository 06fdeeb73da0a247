package graph

import (
	"fmt"

	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/project"
)

func ambiguousDependencyError(id, pathA, pathB string) error {
	return bakeerr.Wrap(bakeerr.KindAmbiguousDependency, "crawl", id,
		fmt.Errorf("project id %q found at both %s and %s", id, pathA, pathB))
}

// Finalize resolves every declared dependency to its (possibly
// placeholder) project, records the declaring project as its
// dependent, and increments the declaring project's own
// unresolved-dependency counter once per declared dependency (spec
// §4.6 "finalize"). Call once, after Crawl, before Walk.
func Finalize(g *Graph) {
	for _, p := range g.All() {
		for _, depID := range p.AllDependencies() {
			g.Resolve(depID, p)
			p.IncUnresolved()
		}
	}
}

// Action is invoked once per project in topological order. It may set
// p.Error; the walk continues regardless (spec §4.6 "The action may
// still be invoked for projects whose dependencies failed to build").
type Action func(p *project.Project) error

// Walk runs the Kahn-style topological walk from spec §4.6, invoking
// action on every project with zero unresolved dependencies, then
// decrementing each dependent's counter and enqueueing it once it
// reaches zero. Returns a KindCycle error if the walk could not reach
// every project.
func Walk(g *Graph, action Action) error {
	all := g.All()
	ready := make([]*project.Project, 0, len(all))
	for _, p := range all {
		if p.UnresolvedCount() == 0 {
			ready = append(ready, p)
		}
	}

	built := 0
	for len(ready) > 0 {
		p := ready[0]
		ready = ready[1:]

		if err := action(p); err != nil {
			p.Error = true
			obs.Orchestrator("project %s failed: %v", p.ID, err)
		}
		built++

		for _, q := range p.Dependents() {
			if q.DecUnresolved() == 0 {
				ready = append(ready, q)
			}
		}
	}

	if built != len(all) {
		var stuck []string
		for _, p := range all {
			if p.UnresolvedCount() != 0 {
				stuck = append(stuck, p.ID)
			}
		}
		return bakeerr.Wrap(bakeerr.KindCycle, "walk", "",
			fmt.Errorf("cycle detected: %d/%d projects built; stuck: %v", built, len(all), stuck))
	}
	return nil
}

// ResolveRecursive implements spec §4.6's "Recursive dependency
// resolution": for every project with a placeholder dependency, probe
// try for an on-disk source via tryLocate; when it resolves to a new
// directory not yet in the graph, crawl it in and repeat until no new
// projects are added.
func ResolveRecursive(g *Graph, tryLocate func(id string) (dir string, found bool)) error {
	for {
		added := false
		for _, p := range g.All() {
			for _, depID := range p.AllDependencies() {
				dep, ok := g.Get(depID)
				if !ok || !dep.Placeholder {
					continue
				}
				dir, found := tryLocate(depID)
				if !found {
					continue
				}
				if err := g.addDiscovered(dir); err != nil {
					return err
				}
				if d, ok := g.Get(depID); ok && !d.Placeholder {
					added = true
				}
			}
		}
		if !added {
			return nil
		}
	}
}
