package backup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/icebox-backup/icebox/internal/utils"
)

// tmpSuffix marks in-progress downloads; such files are never treated as
// synced content.
const tmpSuffix = ".icebox-tmp"

// Reconcile applies the sync policy to every regular file under localRoot
// whose relative path was not observed remotely. Delete removes, Archive
// relocates under archiveRoot preserving the relative path, Keep (and
// dry-run) is a no-op. Outcomes are counted in stats.
func Reconcile(localRoot string, remoteFiles mapset.Set[string], policy SyncPolicy, archiveRoot string, dryRun bool, stats *Stats) {
	if policy == PolicyKeep || dryRun {
		return
	}
	if !utils.DirExists(localRoot) {
		return
	}

	_ = filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(localRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if remoteFiles.Contains(rel) {
			return nil
		}
		applyPolicy(path, rel, policy, archiveRoot, stats)
		return nil
	})
}

func applyPolicy(localFile, relPath string, policy SyncPolicy, archiveRoot string, stats *Stats) {
	switch policy {
	case PolicyArchive:
		target := filepath.Join(archiveRoot, filepath.FromSlash(relPath))
		if err := utils.EnsureParent(target); err != nil {
			slog.Error("archive orphan", "path", relPath, "error", err)
			stats.Errors++
			return
		}
		if err := os.Rename(localFile, target); err != nil {
			slog.Error("archive orphan", "path", relPath, "error", err)
			stats.Errors++
			return
		}
		slog.Info("archived orphan", "path", relPath, "target", target)
		stats.Archived++

	case PolicyDelete:
		if err := os.Remove(localFile); err != nil {
			slog.Error("delete orphan", "path", relPath, "error", err)
			stats.Errors++
			return
		}
		slog.Info("deleted orphan", "path", relPath)
		stats.Deleted++
	}
}

// PruneEmptyDirs removes directories under root left empty by a reconcile
// pass, deepest first. root itself is kept.
func PruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		// fails on non-empty directories, which is exactly what we want
		_ = os.Remove(dir)
	}
}
