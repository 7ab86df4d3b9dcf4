package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/icebox-backup/icebox/internal/utils"
)

const (
	// SharedLibraryPrefix is the provider's naming convention for shared
	// photo library zone identifiers.
	SharedLibraryPrefix = "SharedSync-"

	// PersonalLibraryName and SharedLibraryName are the on-disk folder
	// names for the two libraries.
	PersonalLibraryName = "Library"
	SharedLibraryName   = "Shared Library"

	// photoChunkSize is the streaming buffer for photo downloads; assets
	// are never buffered whole in memory.
	photoChunkSize = 256 * 1024

	// releaseInterval bounds transient memory growth over very large
	// libraries: every this many assets the iterator may drop page
	// buffers and a progress snapshot is published.
	releaseInterval = 50
)

// transientReleaser is implemented by iterators that hold page buffers
// worth dropping periodically.
type transientReleaser interface {
	Release()
}

// PhotoEngine mirrors photo libraries into date-bucketed local storage.
type PhotoEngine struct {
	photos  PhotosAPI
	cache   *ChangeCache
	tracker *ProgressTracker
	dryRun  bool
}

func NewPhotoEngine(photos PhotosAPI, cache *ChangeCache, tracker *ProgressTracker, dryRun bool) *PhotoEngine {
	return &PhotoEngine{photos: photos, cache: cache, tracker: tracker, dryRun: dryRun}
}

// assetRelPath computes the library-relative path for an asset:
// YYYY/MM/DD/filename by best available date, or an unknown_date bucket.
func assetRelPath(asset *PhotoAsset) string {
	if dt, ok := asset.BestDate(); ok {
		return fmt.Sprintf("%04d/%02d/%02d/%s", dt.Year(), int(dt.Month()), dt.Day(), asset.Filename)
	}
	return "unknown_date/" + asset.Filename
}

// uniquePath appends a numeric suffix until the path no longer collides
// with an existing file.
func uniquePath(path string) string {
	if !utils.FileExists(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !utils.FileExists(candidate) {
			return candidate
		}
	}
}

// SyncLibrary mirrors one photo library. It returns the processed asset
// count and the set of observed relative paths for reconciliation, plus
// ErrCancelled when the cancel token fired.
//
// Change detection order per asset: fingerprint cache hit, size match
// against the local file (recording the fingerprint opportunistically),
// trusting an existing file when neither size nor fingerprint is known,
// then download.
func (e *PhotoEngine) SyncLibrary(ctx context.Context, identity, label string, it PhotoIterator, libraryDir string, excludes []string, policy SyncPolicy, archiveDir, destKey string, stats *Stats) (int, mapset.Set[string], error) {
	processed := 0
	remoteFiles := mapset.NewSet[string]()
	currentFile := ""

	scope := Scope{Destination: destKey, Name: label}
	fingerprints := e.cache.Load(scope)
	iterationClean := true

	for {
		if e.tracker.IsCancelled(identity) {
			return processed, remoteFiles, ErrCancelled
		}

		asset, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("iterate photo library", "library", label, "error", err)
			stats.Errors++
			iterationClean = false
			break
		}

		processed++
		if asset.Filename != "" {
			currentFile = asset.Filename
		}

		if rel := e.processAsset(ctx, asset, libraryDir, excludes, fingerprints, stats); rel != "" {
			remoteFiles.Add(rel)
		}

		if processed%releaseInterval == 0 {
			if r, ok := it.(transientReleaser); ok {
				r.Release()
			}
			e.publishProgress(identity, label, currentFile, processed, stats)
		}
	}
	e.publishProgress(identity, label, currentFile, processed, stats)

	slog.Info("photo library finished",
		"library", label,
		"processed", processed,
		"downloaded", stats.Downloaded,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)

	if processed > 0 && policy != PolicyKeep && !e.dryRun {
		Reconcile(libraryDir, remoteFiles, policy, archiveDir, e.dryRun, stats)
		PruneEmptyDirs(libraryDir)
	}

	if iterationClean && !e.dryRun {
		if err := e.cache.Save(scope, fingerprints); err != nil {
			slog.Warn("save fingerprint cache", "library", label, "error", err)
		}
	}

	return processed, remoteFiles, nil
}

// processAsset handles one asset and returns its library-relative path,
// or "" when the asset has no usable filename.
func (e *PhotoEngine) processAsset(ctx context.Context, asset *PhotoAsset, libraryDir string, excludes []string, fingerprints map[string]string, stats *Stats) string {
	if asset.Filename == "" {
		return ""
	}

	rel := assetRelPath(asset)
	if IsExcluded(asset.Filename, excludes) {
		// excluded assets are not downloaded, but their path still counts
		// as observed so reconciliation never removes a local copy
		return rel
	}

	localPath := filepath.Join(libraryDir, filepath.FromSlash(rel))

	fp := asset.Fingerprint()
	if fp != "" && fingerprints[asset.ID] == fp {
		stats.Skipped++
		return rel
	}

	if info, err := os.Stat(localPath); err == nil {
		switch {
		case asset.Size > 0 && info.Size() == asset.Size:
			stats.Skipped++
			if fp != "" {
				fingerprints[asset.ID] = fp
			}
			return rel
		case asset.Size == 0 && fp == "":
			// nothing to compare against: trust the existing file
			slog.Debug("no remote size or fingerprint, trusting local file", "file", asset.Filename)
			stats.Skipped++
			return rel
		default:
			// an unrelated asset already occupies this path
			localPath = uniquePath(localPath)
		}
	}

	if e.dryRun {
		slog.Info("dry run: would download photo", "file", asset.Filename)
		stats.Downloaded++
		return rel
	}

	if err := e.downloadAsset(ctx, asset, localPath); err != nil {
		slog.Error("download photo", "file", asset.Filename, "error", err)
		stats.Errors++
		return rel
	}
	if fp != "" {
		fingerprints[asset.ID] = fp
	}
	stats.Downloaded++
	return rel
}

// downloadAsset streams the asset in fixed-size chunks to a temporary
// file, renames it into place, and stamps the asset date as mtime.
func (e *PhotoEngine) downloadAsset(ctx context.Context, asset *PhotoAsset, localPath string) error {
	if err := utils.EnsureParent(localPath); err != nil {
		return err
	}

	rc, err := e.photos.Open(ctx, asset)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmpPath := localPath + tmpSuffix
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	buf := make([]byte, photoChunkSize)
	if _, err := io.CopyBuffer(tmp, rc, buf); err != nil {
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

	if dt, ok := asset.BestDate(); ok {
		if err := os.Chtimes(localPath, dt, dt); err != nil {
			slog.Warn("stamp photo time", "file", asset.Filename, "error", err)
		}
	}

	slog.Info("photo downloaded", "file", filepath.Base(localPath))
	return nil
}

func (e *PhotoEngine) publishProgress(identity, label, currentFile string, processed int, stats *Stats) {
	snapshot := *stats
	snapshot.Processed = processed
	e.tracker.SetProgress(identity, Progress{
		Phase:       PhasePhotos,
		Label:       label,
		CurrentFile: currentFile,
		Stats:       snapshot,
	})
}

// RunLibraries mirrors the personal library and, when enabled and the
// shared id follows the provider's naming convention, the shared library.
func (e *PhotoEngine) RunLibraries(ctx context.Context, identity, destRoot, destKey string, includeShared bool, sharedLibraryID string, excludes []string, policy SyncPolicy, archiveRoot string) (Stats, error) {
	var stats Stats

	if err := utils.EnsureDir(destRoot); err != nil {
		slog.Error("create photos destination", "path", destRoot, "error", err)
		stats.Errors++
		return stats, nil
	}

	slog.Info("syncing photo library", "identity", identity, "library", PersonalLibraryName)
	it, err := e.photos.All(ctx)
	if err != nil {
		slog.Error("open photo library", "identity", identity, "error", err)
		stats.Errors++
		return stats, nil
	}

	processed, _, runErr := e.SyncLibrary(ctx, identity, PersonalLibraryName, it,
		filepath.Join(destRoot, PersonalLibraryName), excludes, policy,
		filepath.Join(archiveRoot, PersonalLibraryName), destKey, &stats)
	stats.Processed = processed
	if runErr != nil {
		return stats, runErr
	}

	if includeShared && sharedLibraryID != "" && strings.HasPrefix(sharedLibraryID, SharedLibraryPrefix) {
		slog.Info("syncing shared photo library", "identity", identity, "library", sharedLibraryID)
		sharedIt, err := e.photos.Library(ctx, sharedLibraryID)
		if err != nil {
			// a shared library that no longer exists is optional content,
			// not a failed run
			if errors.Is(err, ErrNotFound) {
				slog.Warn("shared photo library unavailable, skipping", "library", sharedLibraryID, "error", err)
				return stats, nil
			}
			slog.Error("open shared photo library", "library", sharedLibraryID, "error", err)
			stats.Errors++
			return stats, nil
		}
		sharedProcessed, _, runErr := e.SyncLibrary(ctx, identity, SharedLibraryName, sharedIt,
			filepath.Join(destRoot, SharedLibraryName), excludes, policy,
			filepath.Join(archiveRoot, SharedLibraryName), destKey, &stats)
		stats.Processed += sharedProcessed
		if runErr != nil {
			return stats, runErr
		}
	}

	return stats, nil
}
