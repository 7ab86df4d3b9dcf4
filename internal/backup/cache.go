package backup

import (
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/icebox-backup/icebox/internal/utils"
)

// Scope identifies one change cache: a destination plus the Drive folder
// or photo library it covers. Each scope persists as its own file and is
// loaded and saved as one unit.
type Scope struct {
	Destination string
	Name        string
}

// ChangeCache persists key→token maps per scope (etags for Drive paths,
// fingerprints for photo assets) under a state directory.
//
// The owning engine must only call Save after a scope completed with zero
// errors; a partially synced scope must read as "needs re-check" on the
// next run.
type ChangeCache struct {
	dir string
}

func NewChangeCache(stateDir string) *ChangeCache {
	return &ChangeCache{dir: stateDir}
}

func (c *ChangeCache) path(scope Scope) string {
	name := "icebox-state-" + utils.SafeName(scope.Destination) + "-" + utils.SafeName(scope.Name) + ".json"
	return filepath.Join(c.dir, name)
}

// Load reads the cache for a scope. A missing or corrupt file is a cold
// cache, never an error.
func (c *ChangeCache) Load(scope Scope) map[string]string {
	path := c.path(scope)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("change cache unreadable, treating as cold", "path", path, "error", err)
		}
		return map[string]string{}
	}

	var cache map[string]string
	if err := json.Unmarshal(data, &cache); err != nil {
		slog.Warn("change cache corrupt, treating as cold", "path", path, "error", err)
		return map[string]string{}
	}
	if cache == nil {
		cache = map[string]string{}
	}
	return cache
}

// Save writes the cache for a scope, replacing any previous file.
func (c *ChangeCache) Save(scope Scope, cache map[string]string) error {
	path := c.path(scope)
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
