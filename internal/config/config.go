package config

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/icebox-backup/icebox/internal/backup"
	"github.com/icebox-backup/icebox/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".icebox", "config.json")
	DefaultDataDir    = filepath.Join(home, ".icebox")
)

// Account is one iCloud account's backup configuration.
type Account struct {
	Identity    string `json:"identity"`
	Destination string `json:"destination,omitempty"`

	Drive        bool     `json:"drive"`
	DriveFolders []string `json:"drive_folders,omitempty"`
	DrivePolicy  string   `json:"drive_policy,omitempty"`

	Photos        bool   `json:"photos"`
	IncludeShared bool   `json:"include_shared_photos,omitempty"`
	SharedLibrary string `json:"shared_library,omitempty"`
	PhotosPolicy  string `json:"photos_policy,omitempty"`

	Exclusions []string `json:"exclusions,omitempty"`
}

// Config is the on-disk configuration: local roots plus per-account
// backup selections.
type Config struct {
	BackupRoot  string    `json:"backup_root"`
	ArchiveRoot string    `json:"archive_root,omitempty"`
	StateDir    string    `json:"state_dir,omitempty"`
	SessionDir  string    `json:"session_dir,omitempty"`
	Accounts    []Account `json:"accounts"`

	Path string `json:"-"`
}

// Load reads and normalizes a config file. Missing roots default under
// the data dir next to the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	base := DefaultDataDir
	if c.Path != "" {
		base = filepath.Dir(c.Path)
	}
	if c.BackupRoot == "" {
		c.BackupRoot = filepath.Join(base, "backups")
	}
	if c.ArchiveRoot == "" {
		c.ArchiveRoot = filepath.Join(base, "archive")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(base, "state")
	}
	if c.SessionDir == "" {
		c.SessionDir = filepath.Join(base, "sessions")
	}
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the parts a run would trip over at runtime.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("config has no accounts")
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Identity == "" {
			return fmt.Errorf("account %d has no identity", i)
		}
		if a.Drive && len(a.DriveFolders) == 0 {
			return fmt.Errorf("account %s enables drive with no folders", a.Identity)
		}
		for _, p := range []string{a.DrivePolicy, a.PhotosPolicy} {
			if p == "" {
				continue
			}
			if _, err := backup.ParsePolicy(p); err != nil {
				return fmt.Errorf("account %s: %w", a.Identity, err)
			}
		}
	}
	return nil
}

// Account looks an account up by identity.
func (c *Config) Account(identity string) (*Account, bool) {
	for i := range c.Accounts {
		if c.Accounts[i].Identity == identity {
			return &c.Accounts[i], true
		}
	}
	return nil, false
}

// RunOptions converts an account's settings into engine run options.
func (a *Account) RunOptions(dryRun bool) backup.RunOptions {
	drivePolicy, _ := backup.ParsePolicy(a.DrivePolicy)
	photosPolicy, _ := backup.ParsePolicy(a.PhotosPolicy)
	return backup.RunOptions{
		Destination:   a.Destination,
		Drive:         a.Drive,
		DriveFolders:  a.DriveFolders,
		DrivePolicy:   drivePolicy,
		Photos:        a.Photos,
		IncludeShared: a.IncludeShared,
		SharedLibrary: a.SharedLibrary,
		PhotosPolicy:  photosPolicy,
		Exclusions:    a.Exclusions,
		DryRun:        dryRun,
	}
}
