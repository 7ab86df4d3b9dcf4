package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebox-backup/icebox/internal/backup"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults derive from the config dir", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, `{"accounts":[{"identity":"user@example.com","photos":true}]}`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "backups"), cfg.BackupRoot)
		assert.Equal(t, filepath.Join(dir, "archive"), cfg.ArchiveRoot)
		assert.Equal(t, filepath.Join(dir, "state"), cfg.StateDir)
		assert.Equal(t, filepath.Join(dir, "sessions"), cfg.SessionDir)
		assert.Equal(t, path, cfg.Path)
	})

	t.Run("explicit roots are kept", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `{"backup_root":"/srv/backups","accounts":[]}`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/backups", cfg.BackupRoot)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `{broken`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "parse config")
	})
}

func TestValidate(t *testing.T) {
	valid := Config{Accounts: []Account{{
		Identity:     "user@example.com",
		Drive:        true,
		DriveFolders: []string{"Documents"},
		DrivePolicy:  "archive",
	}}}
	assert.NoError(t, valid.Validate())

	t.Run("no accounts", func(t *testing.T) {
		assert.Error(t, (&Config{}).Validate())
	})

	t.Run("account without identity", func(t *testing.T) {
		cfg := Config{Accounts: []Account{{Drive: false}}}
		assert.ErrorContains(t, cfg.Validate(), "identity")
	})

	t.Run("drive without folders", func(t *testing.T) {
		cfg := Config{Accounts: []Account{{Identity: "a@b.c", Drive: true}}}
		assert.ErrorContains(t, cfg.Validate(), "no folders")
	})

	t.Run("bad policy", func(t *testing.T) {
		cfg := Config{Accounts: []Account{{Identity: "a@b.c", PhotosPolicy: "purge"}}}
		assert.ErrorContains(t, cfg.Validate(), "sync policy")
	})
}

func TestRunOptions(t *testing.T) {
	account := Account{
		Identity:      "user@example.com",
		Destination:   "mine",
		Drive:         true,
		DriveFolders:  []string{backup.AllFoldersMarker},
		DrivePolicy:   "delete",
		Photos:        true,
		IncludeShared: true,
		SharedLibrary: "SharedSync-ABC",
		Exclusions:    []string{"*.tmp"},
	}

	opts := account.RunOptions(true)
	assert.Equal(t, "mine", opts.Destination)
	assert.Equal(t, backup.PolicyDelete, opts.DrivePolicy)
	assert.Equal(t, backup.PolicyKeep, opts.PhotosPolicy, "empty policy defaults to keep")
	assert.True(t, opts.DryRun)
	assert.Equal(t, []string{backup.AllFoldersMarker}, opts.DriveFolders)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := &Config{
		BackupRoot: "/srv/backups",
		Accounts:   []Account{{Identity: "user@example.com", Photos: true}},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", loaded.BackupRoot)
	require.Len(t, loaded.Accounts, 1)
	assert.True(t, loaded.Accounts[0].Photos)

	got, ok := loaded.Account("user@example.com")
	assert.True(t, ok)
	assert.Equal(t, "user@example.com", got.Identity)
	_, ok = loaded.Account("other@example.com")
	assert.False(t, ok)
}
