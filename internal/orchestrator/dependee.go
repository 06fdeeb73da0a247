package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeerr"
)

// loadDependeeBlock reads the dependee configuration block an
// installed project serialized into its meta directory (spec §4.3
// "dependee", §4.8 step 2 "parse dependee configurations from each
// dependency's installed meta directory"). Returns nil if the
// dependency has no dependee block.
func loadDependeeBlock(metaDir string) (map[string]attr.Value, error) {
	path := filepath.Join(metaDir, "dependee.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindFilesystem, "load-dependee", "", err)
	}
	var block map[string]attr.Value
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "parse-dependee", "", err)
	}
	return block, nil
}
