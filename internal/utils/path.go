package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates path (and parents) unless it already exists.
func EnsureDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureParent creates the parent directory of path.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SafeName flattens a scope or account name into something usable as a
// single file name component. Path separators and spaces become underscores.
func SafeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_", "@", "_at_")
	return r.Replace(name)
}
