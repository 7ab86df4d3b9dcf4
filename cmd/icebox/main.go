package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icebox-backup/icebox/internal/config"
	"github.com/icebox-backup/icebox/internal/version"
)

var (
	home, _ = os.UserHomeDir()

	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "icebox",
	Short:   "Incremental iCloud Drive and Photos backup",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	rootCmd.AddCommand(backupCmd, foldersCmd, statsCmd)
}

func main() {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		path, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".icebox"))
		viper.AddConfigPath(filepath.Join(home, ".config/icebox"))
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

// currentConfig loads the resolved config file, or a default skeleton when
// none exists yet.
func currentConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = config.DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s, create one first", path)
		}
		return nil, err
	}
	return cfg, nil
}
