package driver

import (
	"os/exec"

	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
)

// LookupFunc resolves a project id to its in-memory Project, within
// the current crawl (spec §4.4 "lookup(id)"). Supplied by the
// orchestrator, which is the only component that holds the full
// project index.
type LookupFunc func(id string) (*project.Project, bool)

// CallContext is the vtable's query half (spec §4.4): the (driver,
// project, config) triple the spec threads through thread-local
// storage, passed here as an explicit argument to every lifecycle
// callback instead. One CallContext is constructed per (project,
// driver, phase) invocation by the orchestrator.
type CallContext struct {
	Project  *project.Project
	DriverID string
	Config   string
	Env      *pathenv.Env
	Attrs    attr.Table
	Lookup   LookupFunc

	removals *[]string
}

// NewCallContext constructs a CallContext. removals is a pointer to
// the project-scoped slice the orchestrator drains during the clean
// phase (spec §4.8 "Any files registered via remove() by drivers are
// also deleted").
func NewCallContext(p *project.Project, driverID, config string, env *pathenv.Env, attrs attr.Table, lookup LookupFunc, removals *[]string) *CallContext {
	return &CallContext{
		Project: p, DriverID: driverID, Config: config, Env: env,
		Attrs: attrs, Lookup: lookup, removals: removals,
	}
}

// GetAttr returns the raw attribute value (spec §4.4 "get_attr(name)").
func (c *CallContext) GetAttr(name string) (attr.Value, bool) {
	v, ok := c.Attrs[name]
	return v, ok
}

// GetAttrString returns a string-typed attribute.
func (c *CallContext) GetAttrString(name string) (string, bool) { return c.Attrs.GetString(name) }

// GetAttrBool returns a bool-typed attribute.
func (c *CallContext) GetAttrBool(name string) (bool, bool) { return c.Attrs.GetBool(name) }

// SetAttrString sets a string attribute on the current driver binding.
func (c *CallContext) SetAttrString(name, value string) { c.Attrs[name] = value }

// SetAttrBool sets a bool attribute.
func (c *CallContext) SetAttrBool(name string, value bool) { c.Attrs[name] = value }

// SetAttrArray sets an array attribute.
func (c *CallContext) SetAttrArray(name string, value []attr.Value) { c.Attrs[name] = value }

// Exec runs an external command synchronously, blocking the caller
// until it exits (spec §5 "Subprocess execution... is synchronous").
// A nonzero exit or signal surfaces as KindSubprocessExec.
func (c *CallContext) Exec(name string, args ...string) error {
	obs.Driver("exec %s %v (project %s)", name, args, c.Project.ID)
	cmd := exec.Command(name, args...)
	cmd.Dir = c.Project.Path
	out, err := cmd.CombinedOutput()
	if err != nil {
		obs.Driver("exec failed: %s: %v\n%s", name, err, out)
		return bakeerr.Wrap(bakeerr.KindSubprocessExec, "exec", c.Project.ID, err)
	}
	return nil
}

// Use adds a dependency to the current project (spec §4.4 "use(id)").
// This only affects attribute/link resolution for the remainder of
// the current build; it does not retroactively rejoin the crawler's
// already-finalized dependency walk.
func (c *CallContext) Use(id string) {
	for _, existing := range c.Project.Use {
		if existing == id {
			return
		}
	}
	c.Project.Use = append(c.Project.Use, id)
}

// Remove registers a file to delete on the next clean phase (spec
// §4.4 "remove(path)").
func (c *CallContext) Remove(path string) {
	if c.removals != nil {
		*c.removals = append(*c.removals, path)
	}
}

// LookupProject resolves another project by id (spec §4.4 "lookup(id)").
func (c *CallContext) LookupProject(id string) (*project.Project, bool) {
	if c.Lookup == nil {
		return nil, false
	}
	return c.Lookup(id)
}

// Exists reports whether id resolves to an installed project meta
// directory (spec §4.4 "exists(id)").
func (c *CallContext) Exists(id string) bool {
	return c.Env.Locate(id, pathenv.KindMeta) != ""
}
