package bakeconfig

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// BundleRepository describes one entry of bundles.toml: a bundle
// repository's fetch location and the project ids it ships. This is
// the bundle fetcher's own on-disk format — parsed here so `bake info`
// and friends can report on it, but never executed (fetching/updating
// bundle repositories is out of core scope; see SPEC_FULL.md's domain
// stack table).
type BundleRepository struct {
	URL      string   `toml:"url"`
	Projects []string `toml:"projects"`
}

// loadBundlesTOML reads the optional bundles.toml next to bake.json,
// keyed by bundle name (the same names referenced by bake.json's
// "bundles" map). A missing file is not an error. Grounded on the
// teacher's toml.Unmarshal(data, &struct) usage for Cargo.toml/
// pyproject.toml detection (internal/config/build_artifact_detector.go).
func loadBundlesTOML(home string) (map[string]BundleRepository, error) {
	path := filepath.Join(home, "bundles.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindFilesystem, "load-bundles-toml", "", err)
	}

	var repos map[string]BundleRepository
	if err := toml.Unmarshal(data, &repos); err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "parse-bundles-toml", "", err)
	}
	return repos, nil
}

// Provides reports whether repo lists id among its projects.
func (r BundleRepository) Provides(id string) bool {
	for _, p := range r.Projects {
		if p == id {
			return true
		}
	}
	return false
}
