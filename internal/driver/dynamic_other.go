//go:build !linux && !darwin

package driver

import (
	"fmt"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// LoadDynamic is unavailable on platforms without package plugin
// support (spec §9 Open Question resolution: Windows builds only have
// the compiled-in registry).
func LoadDynamic(r *Registry, id, path string) error {
	return bakeerr.Wrap(bakeerr.KindDriverRegistration, "plugin-open", id,
		fmt.Errorf("dynamic drivers are not supported on this platform; only built-in drivers are available"))
}
