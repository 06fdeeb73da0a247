//go:build linux || darwin

package driver

import (
	"fmt"
	"plugin"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// LoadDynamic loads an out-of-tree driver from a Go native plugin
// (.so on Linux, .dylib on macOS) exporting a symbol:
//
//	func Bakemain(reg *driver.RegistrationContext) error { ... }
//
// This is the literal analogue of the driver shared-object ABI in
// spec §6 ("the driver exports one symbol bakemain(vtable)"). Optional
// side metadata (the plugin path with its extension replaced by
// .bake-driver.yaml) is validated
// first so a malformed driver fails before Bakemain ever runs.
func LoadDynamic(r *Registry, id, path string) error {
	meta, err := loadSideMeta(path)
	if err != nil {
		return err
	}

	p, err := plugin.Open(path)
	if err != nil {
		return bakeerr.Wrap(bakeerr.KindDriverRegistration, "plugin-open", id, err)
	}
	sym, err := p.Lookup("Bakemain")
	if err != nil {
		return bakeerr.Wrap(bakeerr.KindDriverRegistration, "plugin-lookup", id, err)
	}
	bakemain, ok := sym.(func(*RegistrationContext) error)
	if !ok {
		return bakeerr.Wrap(bakeerr.KindDriverRegistration, "plugin-symbol", id,
			fmt.Errorf("Bakemain has unexpected type %T", sym))
	}

	r.Add(&dynamicPlugin{id: id, bakemain: bakemain, preseedIgnore: meta.Ignore})
	return nil
}

// dynamicPlugin adapts a loaded Bakemain function to the Plugin
// interface.
type dynamicPlugin struct {
	id            string
	bakemain      func(*RegistrationContext) error
	preseedIgnore []string
}

func (d *dynamicPlugin) ID() string { return d.id }

func (d *dynamicPlugin) Register(reg *RegistrationContext) error {
	for _, ig := range d.preseedIgnore {
		reg.IgnorePath(ig)
	}
	return d.bakemain(reg)
}
