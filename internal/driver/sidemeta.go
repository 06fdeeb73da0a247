package driver

import (
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// sideMetaSchema documents the side-metadata contract for tooling that
// introspects it (the bake CLI itself has no command that prints it); it is never
// compiled or executed against a value — the pack's only real usage of
// jsonschema-go (internal/mcp/server.go) is exactly this descriptive,
// struct-literal style, never a validate/compile call.
var sideMetaSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"ignore":    {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"lifecycle": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
	},
	Description: "optional <driver-id>.bake-driver.yaml side metadata for a dynamically loaded driver",
}

// SideMetaSchema exposes the descriptive schema for introspection.
func SideMetaSchema() *jsonschema.Schema { return sideMetaSchema }

// sideMeta is the optional "<driver-id>.bake-driver.yaml" file next to
// a dynamically loaded driver (SPEC_FULL.md §4.4 expansion): it
// pre-seeds the ignore-path list and declares which lifecycle
// callbacks the driver claims to implement, so a malformed third-party
// driver fails fast, before Bakemain ever runs.
type sideMeta struct {
	Ignore    []string `yaml:"ignore"`
	Lifecycle []string `yaml:"lifecycle"`
}

var validLifecycleNames = map[string]bool{
	"init": true, "setup": true, "generate": true, "prebuild": true,
	"build": true, "postbuild": true, "test": true, "coverage": true, "clean": true,
}

// loadSideMeta reads path (the dynamic driver's .so/.dylib path with
// its extension replaced by ".bake-driver.yaml"). A missing file is
// not an error — side metadata is optional.
func loadSideMeta(driverPath string) (*sideMeta, error) {
	yamlPath := sideMetaPath(driverPath)
	data, err := os.ReadFile(yamlPath)
	if os.IsNotExist(err) {
		return &sideMeta{}, nil
	}
	if err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindFilesystem, "load-side-meta", "", err)
	}

	var m sideMeta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindDriverRegistration, "parse-side-meta", "", err)
	}
	for _, name := range m.Lifecycle {
		if !validLifecycleNames[name] {
			return nil, bakeerr.Wrap(bakeerr.KindDriverRegistration, "parse-side-meta", "",
				fmt.Errorf("%s declares unknown lifecycle callback %q", yamlPath, name))
		}
	}
	return &m, nil
}

func sideMetaPath(driverPath string) string {
	ext := extOf(driverPath)
	return driverPath[:len(driverPath)-len(ext)] + ".bake-driver.yaml"
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}
