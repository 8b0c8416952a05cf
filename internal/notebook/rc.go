package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

// RCFile is the per-directory file that links local notebooks to their
// hosted projects.
const RCFile = ".jovianrc"

// RCEntry links one local notebook to its hosted project.
type RCEntry struct {
	Slug string `json:"slug"`
}

// RC is the content of a .jovianrc file.
type RC struct {
	Notebooks map[string]RCEntry `json:"notebooks"`
}

// LoadRC reads dir/.jovianrc. A missing file yields an empty RC.
func LoadRC(fs afero.Fs, dir string) (*RC, error) {
	rc := &RC{Notebooks: map[string]RCEntry{}}

	data, err := afero.ReadFile(fs, filepath.Join(dir, RCFile))
	if err != nil {
		if os.IsNotExist(err) {
			return rc, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", RCFile, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), rc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RCFile, err)
	}
	if rc.Notebooks == nil {
		rc.Notebooks = map[string]RCEntry{}
	}
	return rc, nil
}

// Save writes dir/.jovianrc.
func (rc *RC) Save(fs afero.Fs, dir string) error {
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(dir, RCFile), data, 0o644)
}
