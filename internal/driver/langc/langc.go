// Package langc is bake's built-in driver for C and C++ projects. It
// is the reference implementation of the driver.Plugin contract:
// registering the C-SOURCES -> OBJECTS -> ARTEFACT rule chain every
// compiled-language driver follows (spec §4.4/§4.5 examples).
package langc

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/bake/internal/driver"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/rules"
)

func init() {
	driver.Register(&Driver{id: "lang.c", compiler: "cc", ext: ".c"})
	driver.Register(&Driver{id: "lang.cpp", compiler: "c++", ext: ".cpp"})
}

// Driver compiles one source extension with one compiler, archiving
// or linking the result depending on the bound project's Type.
type Driver struct {
	id       string
	compiler string
	ext      string
}

func (d *Driver) ID() string { return d.id }

// Register declares the standard compiled-language rule chain:
// C-SOURCES (a Pattern node matching every **/*<ext> file under the
// project root) -> OBJECTS (Map target, one .o per source) -> ARTEFACT
// (Pattern target, links/archives every object).
func (d *Driver) Register(reg *driver.RegistrationContext) error {
	reg.Pattern("C-SOURCES", "**/*"+d.ext, nil)

	err := reg.Rule("OBJECTS",
		[]rules.SourceRef{{NodeName: "C-SOURCES"}},
		rules.Target{Kind: rules.TargetMap, Map: d.objectPath},
		d.compileOne,
		nil,
	)
	if err != nil {
		return err
	}

	return reg.Rule("ARTEFACT",
		[]rules.SourceRef{{NodeName: "OBJECTS"}},
		rules.Target{Kind: rules.TargetPattern, Nodes: []string{"$OBJECTS"}},
		d.linkOrArchive,
		nil,
	)
}

func (d *Driver) objectPath(ctx *rules.EvalContext, in rules.File) (string, error) {
	rel, err := filepath.Rel(ctx.Root, in.Path)
	if err != nil {
		rel = in.Name
	}
	obj := strings.TrimSuffix(rel, d.ext) + ".o"
	return filepath.Join(ctx.Root, ".bake_cache", "obj", obj), nil
}

func (d *Driver) compileOne(ctx *rules.EvalContext, input, output string) error {
	return d.runCompiler(ctx.ProjectID, "-c", input, "-o", output)
}

func (d *Driver) linkOrArchive(ctx *rules.EvalContext, input, output string) error {
	objects := strings.Fields(input)
	if output == "" {
		return fmt.Errorf("%s: ARTEFACT rule has no single resolved output path", d.id)
	}
	// ArtefactName gives packages a static archive (lib<id>.a) and
	// applications an executable.
	if strings.HasSuffix(output, ".a") {
		arArgs := append([]string{"rcs", output}, objects...)
		obs.Driver("ar %s (project %s)", strings.Join(arArgs, " "), ctx.ProjectID)
		if out, err := exec.Command("ar", arArgs...).CombinedOutput(); err != nil {
			return fmt.Errorf("ar %s: %w\n%s", strings.Join(arArgs, " "), err, out)
		}
		return nil
	}
	args := append(append([]string{}, objects...), "-o", output)
	return d.runCompiler(ctx.ProjectID, args...)
}

func (d *Driver) runCompiler(projectID string, args ...string) error {
	obs.Driver("%s %s (project %s)", d.compiler, strings.Join(args, " "), projectID)
	cmd := exec.Command(d.compiler, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", d.compiler, strings.Join(args, " "), err, out)
	}
	return nil
}

// Init satisfies driver.Initializer: nothing to do for the compiled
// languages beyond what the orchestrator already does generically.
func (d *Driver) Init(ctx *driver.CallContext) error { return nil }

// ArtefactName implements driver.ArtefactNamer.
func (d *Driver) ArtefactName(ctx *driver.CallContext) (string, error) {
	base := ctx.Project.IDUnderscore()
	if ctx.Project.Type == "application" {
		return base, nil
	}
	return "lib" + base + ".a", nil
}

// LinkToLib implements driver.LinkResolver by looking the given
// logical library name up as a project of the current crawl and
// returning that project's ArtefactPath; the environment is not probed.
func (d *Driver) LinkToLib(ctx *driver.CallContext, libName string) (string, error) {
	if p, ok := ctx.LookupProject(libName); ok {
		return p.ArtefactPath, nil
	}
	return "", fmt.Errorf("%s: cannot resolve link target %q", d.id, libName)
}
