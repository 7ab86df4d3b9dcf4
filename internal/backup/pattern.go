package backup

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Exclusion patterns come in three kinds:
//
//   - component globs ("*.tmp", ".git") match any single path segment
//   - path prefixes ("Documents/Temp") match the path itself or any
//     descendant, on whole segments only
//   - full-path globs ("Documents/*/cache") match the entire relative path
//
// Order does not matter; any match excludes.

func isGlobPattern(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// IsExcluded reports whether relPath matches any exclusion pattern.
// relPath uses forward slashes and is relative to the scope being walked.
func IsExcluded(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	segments := strings.Split(relPath, "/")
	for _, pattern := range patterns {
		glob := isGlobPattern(pattern)
		slash := strings.Contains(pattern, "/")

		switch {
		case glob && slash:
			if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
				return true
			}
		case glob:
			for _, seg := range segments {
				if ok, err := doublestar.Match(pattern, seg); err == nil && ok {
					return true
				}
			}
		case slash:
			if relPath == pattern || strings.HasPrefix(relPath, pattern+"/") {
				return true
			}
		default:
			// whole segments only: "node_modules" must not match
			// "my_node_modules_backup"
			if slices.Contains(segments, pattern) {
				return true
			}
		}
	}
	return false
}

// AdjustForFolder rewrites patterns expressed relative to the Drive root
// for a walk scoped to one top-level folder: patterns starting with
// "folderName/" lose that prefix ("Docs/Temp" becomes "Temp" inside the
// Docs walk, "Docs/*" collapses to "*"). Everything else passes through.
func AdjustForFolder(folderName string, patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	prefix := folderName + "/"
	adjusted := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.Contains(pattern, "/") && strings.HasPrefix(pattern, prefix) {
			if stripped := pattern[len(prefix):]; stripped != "" {
				adjusted = append(adjusted, stripped)
			}
			continue
		}
		adjusted = append(adjusted, pattern)
	}
	return adjusted
}

// IsFolderFullyExcluded reports whether a top-level folder should be
// skipped without walking: a pattern equals "folderName/*" or a non-glob
// pattern equals the folder name itself.
func IsFolderFullyExcluded(folderName string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == folderName+"/*" {
			return true
		}
		if !isGlobPattern(pattern) && pattern == folderName {
			return true
		}
	}
	return false
}
