// Package backup implements the incremental mirror of a remote document
// tree and photo library to local storage: change detection through etag
// and fingerprint caches, atomic downloads with a shared-folder fallback
// chain, orphan reconciliation, and live per-identity progress.
package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by the engines when the run's cancel token
	// was set. It is a distinct outcome, not a failure, and is never
	// counted in Stats.Errors.
	ErrCancelled = errors.New("backup cancelled")

	// ErrNotFound classifies a download failure caused by addressing or
	// zone ambiguity. Only this class triggers the resolver's fallbacks.
	ErrNotFound = errors.New("remote item not found")

	// ErrNoSession indicates no usable remote session exists for an
	// identity.
	ErrNoSession = errors.New("no active session")
)

// SyncPolicy is the disposition applied to local files absent from the
// latest remote listing.
type SyncPolicy string

const (
	PolicyKeep    SyncPolicy = "keep"
	PolicyDelete  SyncPolicy = "delete"
	PolicyArchive SyncPolicy = "archive"
)

// ParsePolicy validates a policy string, defaulting empty to keep.
func ParsePolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(s) {
	case PolicyKeep, PolicyDelete, PolicyArchive:
		return SyncPolicy(s), nil
	case "":
		return PolicyKeep, nil
	default:
		return "", fmt.Errorf("unknown sync policy %q", s)
	}
}

// Stats accumulates per-scope counters. Per-item failures increment Errors
// and never abort the surrounding walk.
type Stats struct {
	Downloaded int `json:"downloaded"`
	Deleted    int `json:"deleted"`
	Archived   int `json:"archived"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Processed  int `json:"processed,omitempty"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Downloaded += other.Downloaded
	s.Deleted += other.Deleted
	s.Archived += other.Archived
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Processed += other.Processed
}

// Summary renders the counters the way run summaries show them. Deleted
// and archived only appear when nonzero.
func (s *Stats) Summary(label string) string {
	out := fmt.Sprintf("%s: %d downloaded", label, s.Downloaded)
	if s.Deleted > 0 {
		out += fmt.Sprintf(", %d deleted", s.Deleted)
	}
	if s.Archived > 0 {
		out += fmt.Sprintf(", %d archived", s.Archived)
	}
	out += fmt.Sprintf(", %d skipped, %d errors", s.Skipped, s.Errors)
	return out
}
