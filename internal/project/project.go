// Package project implements the in-memory project model (spec §3,
// §4.3): loading and normalizing a project.json manifest and exposing
// its derived fields and per-driver attribute tables.
package project

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/pathenv"
)

// Type is one of the four project kinds from spec §3.
type Type string

const (
	TypeApplication Type = "application"
	TypePackage     Type = "package"
	TypeTool        Type = "tool"
	TypeTemplate    Type = "template"
)

// normalizeType maps the legacy aliases from spec §4.3.
func normalizeType(s string) Type {
	switch s {
	case "executable":
		return TypeApplication
	case "library":
		return TypePackage
	case "", "package":
		return TypePackage
	default:
		return Type(s)
	}
}

// DriverBinding is the {driver, raw JSON, parsed attrs} triple a
// project holds per driver it uses (spec §3 "Project-driver binding").
type DriverBinding struct {
	DriverID string
	Raw      map[string]attr.Value
	Attrs    attr.Table
	// BaseAttrs holds attributes inherited from a driver this one
	// declares as its base, if any.
	BaseAttrs attr.Table
}

// Project is the in-memory representation of a single discovered
// project.
type Project struct {
	ID       string
	Type     Type
	Path     string // absolute path on disk
	Language string
	Version  string
	Public   bool

	Sources  []string // relative source directories, default ["src"]
	Includes []string // relative include directories, default ["include"]

	Use        []string // public dependencies
	UsePrivate []string
	UseBuild   []string
	UseRuntime []string
	UseBundle  []string
	Link       []string // external libraries

	Drivers          map[string]*DriverBinding
	LanguageDriverID string

	// Dependee holds the raw (pre-interpolation) configuration block
	// this project contributes to every project that depends on it
	// (spec §4.3 "dependee"), serialized into the installed meta
	// directory by the installer and merged into a dependent's own
	// attribute table during post-discovery (spec §4.2, §4.8 step 2).
	Dependee map[string]attr.Value

	// Computed fields.
	ArtefactName string // set by the language driver
	ArtefactPath string // combines Path, platform bin subdir, ArtefactName

	// state holds the fields mutated concurrently with the back-edge
	// list (dependents, unresolved-dependency counter). It is a
	// pointer so a placeholder's state survives ReplaceWith, which
	// otherwise copies the whole struct by value.
	state *mutableState

	Changed      bool // set when the rule engine runs an action
	FreshlyBaked bool // same signal, consumed by the installer
	Error        bool // set when an action fails

	// Placeholder is true for a project created only because another
	// project's "use" list named it before the crawler reached it.
	Placeholder bool

	Standalone bool // deps embedded under deps/, per spec standalone mode
}

type mutableState struct {
	mu         sync.Mutex
	dependents []*Project
	unresolved int
}

// Dependents returns the back-edge list (spec §3).
func (p *Project) Dependents() []*Project {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return append([]*Project(nil), p.state.dependents...)
}

// IDBase, IDDash, IDUnderscore are the three derivable id forms (spec
// §3 invariant / §8 round-trip laws).
func (p *Project) IDBase() string       { return pathenv.BaseID(p.ID) }
func (p *Project) IDDash() string       { return pathenv.DashID(p.ID) }
func (p *Project) IDUnderscore() string { return pathenv.UnderscoreID(p.ID) }

// BinPath returns the project's platform-specific bin subdirectory,
// e.g. <path>/bin/<triple>-<config>/.
func (p *Project) BinPath(platformTriple, config string) string {
	return filepath.Join(p.Path, "bin", platformTriple+"-"+config)
}

// CachePath returns the project's .bake_cache directory.
func (p *Project) CachePath() string { return filepath.Join(p.Path, ".bake_cache") }

// SourceDirs returns absolute source directories.
func (p *Project) SourceDirs() []string { return joinAll(p.Path, p.Sources) }

// IncludeDirs returns absolute include directories.
func (p *Project) IncludeDirs() []string { return joinAll(p.Path, p.Includes) }

func joinAll(base string, rels []string) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = filepath.Join(base, r)
	}
	return out
}

// AllDependencies returns Use ∪ UsePrivate ∪ UseBuild ∪ UseRuntime ∪
// UseBundle, deduplicated, sorted for deterministic walk ordering
// among projects declared with equal priority.
func (p *Project) AllDependencies() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{p.Use, p.UsePrivate, p.UseBuild, p.UseRuntime, p.UseBundle} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// AddDependent appends d to the back-edge list (spec §3 "dependent
// back-edge list").
func (p *Project) AddDependent(d *Project) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	p.state.dependents = append(p.state.dependents, d)
}

// UnresolvedCount returns the current unresolved-dependency counter
// used by the Kahn-style walk (spec §4.6).
func (p *Project) UnresolvedCount() int {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.unresolved
}

// IncUnresolved increments the counter (called during finalize, once
// per declared dependency).
func (p *Project) IncUnresolved() {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	p.state.unresolved++
}

// DecUnresolved decrements the counter, returning the new value.
func (p *Project) DecUnresolved() int {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	p.state.unresolved--
	return p.state.unresolved
}

// Binding returns the driver binding for driverID, or nil.
func (p *Project) Binding(driverID string) *DriverBinding {
	return p.Drivers[driverID]
}

// New constructs a project with fresh mutable state.
func New(id string) *Project {
	return &Project{
		ID:      id,
		Type:    TypePackage,
		Drivers: make(map[string]*DriverBinding),
		state:   &mutableState{},
	}
}

// NewPlaceholder constructs the skeletal project record the crawler
// inserts when a "use" reference names a project before it has been
// discovered (spec §4.6).
func NewPlaceholder(id string) *Project {
	p := New(id)
	p.Placeholder = true
	return p
}

// ReplaceWith copies real discovered into this placeholder in place,
// preserving its accumulated back-edge list (spec §3 "Lifecycle").
// The placeholder's *mutableState is kept (not real's), since it is
// what the back-edges were recorded against.
func (p *Project) ReplaceWith(real *Project) {
	state := p.state
	*p = *real
	p.state = state
	p.Placeholder = false
}
