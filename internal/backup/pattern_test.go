package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExcluded(t *testing.T) {
	t.Run("component glob matches any segment", func(t *testing.T) {
		patterns := []string{"*.tmp"}
		assert.True(t, IsExcluded("notes.tmp", patterns))
		assert.True(t, IsExcluded("Projects/build/cache.tmp", patterns))
		assert.False(t, IsExcluded("notes.txt", patterns))
	})

	t.Run("plain name matches whole segments only", func(t *testing.T) {
		patterns := []string{"node_modules"}
		assert.True(t, IsExcluded("node_modules", patterns))
		assert.True(t, IsExcluded("app/node_modules/lib/index.js", patterns))
		assert.False(t, IsExcluded("my_node_modules_backup/file.js", patterns))
	})

	t.Run("path prefix matches itself and descendants", func(t *testing.T) {
		patterns := []string{"Documents/Temp"}
		assert.True(t, IsExcluded("Documents/Temp", patterns))
		assert.True(t, IsExcluded("Documents/Temp/draft.txt", patterns))
		assert.False(t, IsExcluded("Documents/Temporary/draft.txt", patterns))
		assert.False(t, IsExcluded("Documents", patterns))
	})

	t.Run("full path glob matches the entire path", func(t *testing.T) {
		patterns := []string{"Projects/*/cache"}
		assert.True(t, IsExcluded("Projects/app/cache", patterns))
		assert.False(t, IsExcluded("Projects/app/deep/cache", patterns))
		assert.False(t, IsExcluded("Other/app/cache", patterns))
	})

	t.Run("doublestar spans directories", func(t *testing.T) {
		patterns := []string{"Projects/**/cache"}
		assert.True(t, IsExcluded("Projects/app/deep/cache", patterns))
	})

	t.Run("any pattern matching excludes", func(t *testing.T) {
		patterns := []string{"*.log", ".git", "Documents/Temp"}
		assert.True(t, IsExcluded("app/.git/config", patterns))
		assert.True(t, IsExcluded("debug.log", patterns))
		assert.True(t, IsExcluded("Documents/Temp/x", patterns))
		assert.False(t, IsExcluded("Documents/real.txt", patterns))
	})

	t.Run("no patterns excludes nothing", func(t *testing.T) {
		assert.False(t, IsExcluded("anything", nil))
	})
}

func TestAdjustForFolder(t *testing.T) {
	t.Run("strips folder prefix", func(t *testing.T) {
		got := AdjustForFolder("Docs", []string{"Docs/Temp", "Docs/*", "*.tmp", "Other/x"})
		assert.Equal(t, []string{"Temp", "*", "*.tmp", "Other/x"}, got)
	})

	t.Run("drops empty remainder", func(t *testing.T) {
		got := AdjustForFolder("Docs", []string{"Docs/"})
		assert.Empty(t, got)
	})

	t.Run("nil for no patterns", func(t *testing.T) {
		assert.Nil(t, AdjustForFolder("Docs", nil))
	})
}

func TestIsFolderFullyExcluded(t *testing.T) {
	assert.True(t, IsFolderFullyExcluded("Docs", []string{"Docs/*"}))
	assert.True(t, IsFolderFullyExcluded("Docs", []string{"Docs"}))
	assert.False(t, IsFolderFullyExcluded("Docs", []string{"Docs/Temp"}))
	assert.False(t, IsFolderFullyExcluded("Docs", []string{"D*"}))
	assert.False(t, IsFolderFullyExcluded("Docs", nil))
}
