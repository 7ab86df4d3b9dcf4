package backup

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"

	"github.com/icebox-backup/icebox/internal/utils"
)

const (
	// AllFoldersMarker in a folder selection expands to every top-level
	// Drive folder owned by the account.
	AllFoldersMarker = "__ALL__"

	// modTimeTolerance absorbs timestamp rounding between the remote
	// listing and the local filesystem.
	modTimeTolerance = 2 * time.Second
)

// DriveEngine mirrors iCloud Drive folders into a destination tree.
type DriveEngine struct {
	api      DriveAPI
	resolver *DownloadResolver
	cache    *ChangeCache
	tracker  *ProgressTracker
	dryRun   bool
}

func NewDriveEngine(api DriveAPI, cache *ChangeCache, tracker *ProgressTracker, dryRun bool) *DriveEngine {
	return &DriveEngine{
		api:      api,
		resolver: NewDownloadResolver(api),
		cache:    cache,
		tracker:  tracker,
		dryRun:   dryRun,
	}
}

// driveEntry is one walk result: either a file node, or a folder etag
// sentinel (node == nil) emitted after the folder's subtree so the caller
// can update the cache once the scope finishes error-free.
type driveEntry struct {
	relPath    string
	node       *RemoteNode
	folderEtag string
}

// walk streams the remote tree under node depth-first. Folders whose etag
// matches the cache are skipped whole: an untouched subtree costs one
// comparison instead of a listing per descendant. fn returning an error
// stops the walk and propagates it.
//
// A listing failure anywhere is counted in stats and makes the walk
// unclean: the failed folder's etag sentinel is suppressed so the subtree
// stays "needs re-check" on the next run, and the caller must not treat
// the observed file set as complete.
func (e *DriveEngine) walk(ctx context.Context, node *RemoteNode, prefix string, excludes []string, cache map[string]string, stats *Stats, fn func(driveEntry) error) (bool, error) {
	children, err := e.api.Children(ctx, node)
	if err != nil {
		slog.Error("list remote folder", "path", prefix, "error", err)
		stats.Errors++
		return false, nil
	}

	clean := true
	for _, child := range children {
		rel := child.Name
		if prefix != "" {
			rel = prefix + "/" + child.Name
		}

		if IsExcluded(rel, excludes) {
			slog.Debug("excluded", "path", rel)
			continue
		}

		if child.IsFolder() {
			if child.Etag != "" && cache[rel] == child.Etag {
				slog.Debug("etag cache hit, skipping subtree", "path", rel)
				continue
			}
			subClean, err := e.walk(ctx, child, rel, excludes, cache, stats, fn)
			if err != nil {
				return clean, err
			}
			if !subClean {
				clean = false
				continue
			}
			if child.Etag != "" {
				if err := fn(driveEntry{relPath: rel, folderEtag: child.Etag}); err != nil {
					return clean, err
				}
			}
			continue
		}

		if err := fn(driveEntry{relPath: rel, node: child}); err != nil {
			return clean, err
		}
	}
	return clean, nil
}

// SyncFolder mirrors one top-level Drive folder into destRoot/folderName.
// Per-file failures are counted, never fatal; the scope's etag cache is
// written only when the error count is zero. Returns ErrCancelled when the
// identity's cancel token fires mid-walk.
func (e *DriveEngine) SyncFolder(ctx context.Context, identity, folderName, destRoot, destKey string, excludes []string, policy SyncPolicy, archiveRoot string) (Stats, error) {
	var stats Stats

	root, err := e.api.Root(ctx)
	if err != nil {
		slog.Error("resolve drive root", "identity", identity, "error", err)
		stats.Errors++
		return stats, nil
	}
	folder, err := e.api.Child(ctx, root, folderName)
	if err != nil {
		slog.Error("resolve drive folder", "folder", folderName, "error", err)
		stats.Errors++
		return stats, nil
	}

	owner, err := e.api.Owner(ctx)
	if err != nil {
		slog.Error("resolve account owner", "identity", identity, "error", err)
		stats.Errors++
		return stats, nil
	}
	if folder.ForeignOwned(owner) {
		// foreign-owned shared content cannot be retrieved through this
		// account's API; skipping is the correct non-error outcome
		slog.Info("skipping foreign-owned shared folder", "folder", folderName, "owner", folder.Share.OwnerRecord)
		return stats, nil
	}

	dest := filepath.Join(destRoot, folderName)
	if err := utils.EnsureDir(dest); err != nil {
		slog.Error("create destination", "path", dest, "error", err)
		stats.Errors++
		return stats, nil
	}

	adjusted := AdjustForFolder(folderName, excludes)

	scope := Scope{Destination: destKey, Name: folderName}
	cache := e.cache.Load(scope)
	newEtags := map[string]string{}
	remoteFiles := mapset.NewSet[string]()

	walkClean, walkErr := e.walk(ctx, folder, "", adjusted, cache, &stats, func(entry driveEntry) error {
		if e.tracker.IsCancelled(identity) {
			return ErrCancelled
		}

		if entry.node == nil {
			newEtags[entry.relPath] = entry.folderEtag
			return nil
		}

		remoteFiles.Add(entry.relPath)
		localPath := filepath.Join(dest, filepath.FromSlash(entry.relPath))

		if !fileNeedsUpdate(entry.node, localPath) {
			stats.Skipped++
			return nil
		}

		if e.dryRun {
			slog.Info("dry run: would download", "path", entry.relPath)
			stats.Downloaded++
		} else if err := e.downloadFile(ctx, entry.node, entry.relPath, localPath); err != nil {
			slog.Error("download", "path", entry.relPath, "error", err)
			stats.Errors++
		} else {
			stats.Downloaded++
		}

		e.tracker.SetProgress(identity, Progress{
			Phase:       PhaseDrive,
			Label:       folderName,
			CurrentFile: entry.relPath,
			Stats:       stats,
		})
		return nil
	})
	if walkErr != nil {
		return stats, walkErr
	}

	// reconciliation requires a complete remote listing: a partially
	// walked tree must never turn missing listings into deletions
	if walkClean && policy != PolicyKeep && !e.dryRun {
		Reconcile(dest, remoteFiles, policy, filepath.Join(archiveRoot, folderName), e.dryRun, &stats)
		PruneEmptyDirs(dest)
	}

	if stats.Errors == 0 {
		for rel, etag := range newEtags {
			cache[rel] = etag
		}
		if err := e.cache.Save(scope, cache); err != nil {
			slog.Warn("save etag cache", "folder", folderName, "error", err)
		}
	}

	return stats, nil
}

// fileNeedsUpdate compares the remote node against the local file: equal
// size and a modification time within tolerance count as in sync.
func fileNeedsUpdate(node *RemoteNode, localPath string) bool {
	info, err := os.Stat(localPath)
	if err != nil {
		return true
	}
	if info.Size() != node.Size {
		return true
	}
	if node.Modified.IsZero() {
		return false
	}
	delta := info.ModTime().Sub(node.Modified)
	if delta < 0 {
		delta = -delta
	}
	return delta > modTimeTolerance
}

// downloadFile streams the node into a temporary file, atomically renames
// it over the target, and restores the remote modification time.
func (e *DriveEngine) downloadFile(ctx context.Context, node *RemoteNode, relPath, localPath string) error {
	if err := utils.EnsureParent(localPath); err != nil {
		return err
	}

	rc, err := e.resolver.Open(ctx, node)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmpPath := localPath + tmpSuffix
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if !node.Modified.IsZero() {
		if err := os.Chtimes(localPath, node.Modified, node.Modified); err != nil {
			slog.Warn("restore modification time", "path", relPath, "error", err)
		}
	}

	slog.Info("downloaded", "path", relPath, "size", humanize.Bytes(uint64(node.Size)))
	return nil
}

// ListTopFolders returns the account's top-level Drive folders, sorted
// case-insensitively, excluding foreign-owned shares.
func (e *DriveEngine) ListTopFolders(ctx context.Context) ([]string, error) {
	root, err := e.api.Root(ctx)
	if err != nil {
		return nil, err
	}
	children, err := e.api.Children(ctx, root)
	if err != nil {
		return nil, err
	}
	owner, err := e.api.Owner(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, child := range children {
		if child.IsFolder() && !child.ForeignOwned(owner) {
			names = append(names, child.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

// RunBackup mirrors the selected folders (resolving AllFoldersMarker to
// the live listing), checking cancellation before each and skipping fully
// excluded ones. Stats accumulate across folders.
func (e *DriveEngine) RunBackup(ctx context.Context, identity string, folders []string, destRoot, destKey string, excludes []string, policy SyncPolicy, archiveRoot string) (Stats, error) {
	var total Stats

	resolved, err := e.resolveFolders(ctx, folders)
	if err != nil {
		slog.Error("resolve drive folders", "identity", identity, "error", err)
		total.Errors++
		return total, nil
	}

	if err := utils.EnsureDir(destRoot); err != nil {
		slog.Error("create drive destination", "path", destRoot, "error", err)
		total.Errors++
		return total, nil
	}

	for _, folder := range resolved {
		if e.tracker.IsCancelled(identity) {
			return total, ErrCancelled
		}
		if IsFolderFullyExcluded(folder, excludes) {
			slog.Info("folder fully excluded", "folder", folder)
			continue
		}

		slog.Info("syncing drive folder", "folder", folder, "dest", destRoot)
		e.tracker.SetProgress(identity, Progress{
			Phase: PhaseDrive,
			Label: folder,
			Stats: total,
		})

		stats, err := e.SyncFolder(ctx, identity, folder, destRoot, destKey, excludes, policy, archiveRoot)
		total.Add(stats)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (e *DriveEngine) resolveFolders(ctx context.Context, folders []string) ([]string, error) {
	for _, f := range folders {
		if f == AllFoldersMarker {
			return e.ListTopFolders(ctx)
		}
	}
	return folders, nil
}
