package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/icebox-backup/icebox/internal/utils"
)

// Paths are the local roots the orchestrator owns: mirrored content under
// BackupRoot/<destination>/{drive,photos}, archived orphans under
// ArchiveRoot, change caches under StateDir.
type Paths struct {
	BackupRoot  string
	ArchiveRoot string
	StateDir    string
}

// RunOptions selects what one backup run covers for an identity.
type RunOptions struct {
	Destination string

	Drive        bool
	DriveFolders []string
	DrivePolicy  SyncPolicy

	Photos        bool
	IncludeShared bool
	SharedLibrary string
	PhotosPolicy  SyncPolicy

	Exclusions []string
	DryRun     bool
}

// Result is the outcome of one run. Cancelled is a distinct non-error
// outcome; Success is false when any sub-engine counted errors.
type Result struct {
	DriveStats  *Stats `json:"drive_stats,omitempty"`
	PhotosStats *Stats `json:"photos_stats,omitempty"`
	Success     bool   `json:"success"`
	Cancelled   bool   `json:"cancelled"`
	Message     string `json:"message"`
}

// Orchestrator runs Drive and/or Photos sync for one account at a time per
// identity and owns the shared progress/cancel registry. Identities may
// run concurrently; their caches and destinations never overlap because
// everything is keyed by destination.
type Orchestrator struct {
	sessions SessionProvider
	paths    Paths
	tracker  *ProgressTracker
	cache    *ChangeCache
}

func NewOrchestrator(sessions SessionProvider, paths Paths) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		paths:    paths,
		tracker:  NewProgressTracker(),
		cache:    NewChangeCache(paths.StateDir),
	}
}

// Tracker exposes the progress/cancel registry to the caller's API layer.
func (o *Orchestrator) Tracker() *ProgressTracker { return o.tracker }

// GetProgress returns the live snapshot for an identity's active run.
func (o *Orchestrator) GetProgress(identity string) (Progress, bool) {
	return o.tracker.GetProgress(identity)
}

// RequestCancel flags an active run for cancellation; false means there
// was nothing to cancel.
func (o *Orchestrator) RequestCancel(identity string) bool {
	return o.tracker.RequestCancel(identity)
}

// DestinationForIdentity derives a filesystem-safe destination name from
// an account identity.
func DestinationForIdentity(identity string) string {
	r := strings.NewReplacer("@", "_at_", ".", "_")
	return r.Replace(identity)
}

// RunBackup executes a complete backup for one account. Progress and the
// cancel token are registered up front and released on every exit path;
// an unexpected panic in a sub-engine is downgraded to an error result.
func (o *Orchestrator) RunBackup(ctx context.Context, identity string, opts RunOptions) (result *Result) {
	result = &Result{Success: true}

	dest := opts.Destination
	if dest == "" {
		dest = DestinationForIdentity(identity)
	}

	o.tracker.RegisterCancel(identity)
	o.tracker.SetProgress(identity, Progress{Phase: PhaseStarting})
	defer o.tracker.ClearProgress(identity)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("backup run failed unexpectedly", "identity", identity, "panic", r)
			result.Success = false
			result.Message = fmt.Sprintf("backup failed: %v", r)
		}
	}()

	cancelled := false

	if opts.Drive && len(opts.DriveFolders) > 0 {
		slog.Info("starting drive backup", "identity", identity)
		stats, err := o.runDrive(ctx, identity, dest, opts)
		result.DriveStats = &stats
		if stats.Errors > 0 {
			result.Success = false
		}
		if errors.Is(err, ErrCancelled) {
			cancelled = true
		}
	}

	if !cancelled && opts.Photos {
		slog.Info("starting photos backup", "identity", identity)
		stats, err := o.runPhotos(ctx, identity, dest, opts)
		result.PhotosStats = &stats
		if stats.Errors > 0 {
			result.Success = false
		}
		if errors.Is(err, ErrCancelled) {
			cancelled = true
		}
	}

	if cancelled {
		slog.Info("backup cancelled by user", "identity", identity)
		result.Success = false
		result.Cancelled = true
	}

	result.Message = o.composeMessage(result)
	return result
}

func (o *Orchestrator) runDrive(ctx context.Context, identity, dest string, opts RunOptions) (Stats, error) {
	api, err := o.sessions.Drive(ctx, identity)
	if err != nil {
		slog.Error("drive session unavailable", "identity", identity, "error", err)
		return Stats{Errors: 1}, nil
	}

	engine := NewDriveEngine(api, o.cache, o.tracker, opts.DryRun)
	return engine.RunBackup(ctx, identity, opts.DriveFolders,
		filepath.Join(o.paths.BackupRoot, dest, "drive"), dest,
		opts.Exclusions, opts.DrivePolicy,
		filepath.Join(o.paths.ArchiveRoot, dest, "drive"))
}

func (o *Orchestrator) runPhotos(ctx context.Context, identity, dest string, opts RunOptions) (Stats, error) {
	api, err := o.sessions.Photos(ctx, identity)
	if err != nil {
		slog.Error("photos session unavailable", "identity", identity, "error", err)
		return Stats{Errors: 1}, nil
	}

	engine := NewPhotoEngine(api, o.cache, o.tracker, opts.DryRun)
	return engine.RunLibraries(ctx, identity,
		filepath.Join(o.paths.BackupRoot, dest, "photos"), dest,
		opts.IncludeShared, opts.SharedLibrary,
		opts.Exclusions, opts.PhotosPolicy,
		filepath.Join(o.paths.ArchiveRoot, dest, "photos"))
}

func (o *Orchestrator) composeMessage(result *Result) string {
	var parts []string
	if result.Cancelled {
		parts = append(parts, "cancelled by user")
	}
	if result.DriveStats != nil {
		parts = append(parts, result.DriveStats.Summary("Drive"))
	}
	if result.PhotosStats != nil {
		parts = append(parts, result.PhotosStats.Summary("Photos"))
	}
	if len(parts) == 0 {
		return "nothing to back up"
	}
	return strings.Join(parts, " | ")
}

// SubtreeStats is a recursive file count and byte total.
type SubtreeStats struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"size_bytes"`
}

// StorageStats reports local usage for a destination's drive and photos
// subtrees.
type StorageStats struct {
	Drive  SubtreeStats `json:"drive"`
	Photos SubtreeStats `json:"photos"`
}

// GetStorageStats scans both subtrees of a destination concurrently.
func (o *Orchestrator) GetStorageStats(destination string) (*StorageStats, error) {
	base := filepath.Join(o.paths.BackupRoot, destination)
	stats := &StorageStats{}

	var g errgroup.Group
	g.Go(func() error {
		stats.Drive = scanSubtree(filepath.Join(base, "drive"))
		return nil
	})
	g.Go(func() error {
		stats.Photos = scanSubtree(filepath.Join(base, "photos"))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func scanSubtree(root string) SubtreeStats {
	var s SubtreeStats
	if !utils.DirExists(root) {
		return s
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		s.Count++
		s.SizeBytes += info.Size()
		return nil
	})
	return s
}
