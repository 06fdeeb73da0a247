package orchestrator

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/project"
)

// Watch runs one full Walk, then watches every project's declared
// source and include directories for changes, debounced per
// bakeconfig's WatchDebounceMs, re-entering the orchestrator for the
// affected project (and transitively its dependents) on each settled
// batch of events (SPEC_FULL.md §4.8 expansion, modeled on the
// teacher's eventDebouncer in internal/indexing/watcher.go). Blocks
// until stop is closed.
func (o *Orchestrator) Watch(stop <-chan struct{}) error {
	if err := o.Walk(); err != nil {
		obs.Orchestrator("initial build reported errors: %v", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirToProject := make(map[string]string)
	for _, p := range o.Graph.All() {
		for _, dir := range append(p.SourceDirs(), p.IncludeDirs()...) {
			if err := w.Add(dir); err == nil {
				dirToProject[dir] = p.ID
			}
		}
	}

	debounce := time.Duration(o.Config.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	var mu sync.Mutex
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		mu.Lock()
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		for _, id := range ids {
			p, ok := o.Graph.Get(id)
			if !ok {
				continue
			}
			o.rebuildWithDependents(p)
		}
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id, known := dirToProject[filepath.Dir(ev.Name)]
			if !known {
				continue
			}
			mu.Lock()
			pending[id] = true
			mu.Unlock()
			timer.Reset(debounce)
		case <-timer.C:
			flush()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			obs.Orchestrator("watch error: %v", err)
		}
	}
}

// rebuildWithDependents rebuilds p and every project transitively
// depending on it, in dependency order.
func (o *Orchestrator) rebuildWithDependents(p *project.Project) {
	seen := make(map[string]bool)
	var order []*project.Project
	var visit func(cur *project.Project)
	visit = func(cur *project.Project) {
		if seen[cur.ID] {
			return
		}
		seen[cur.ID] = true
		for _, dep := range cur.Dependents() {
			visit(dep)
		}
		order = append(order, cur)
	}
	visit(p)
	// Reversed post-order puts every project after all of its
	// dependencies within the affected set.
	for i := len(order) - 1; i >= 0; i-- {
		if err := o.Build(order[i]); err != nil {
			obs.Orchestrator("rebuild of %s failed: %v", order[i].ID, err)
		}
	}
}
