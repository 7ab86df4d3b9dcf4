package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icebox-backup/icebox/internal/backup"
	"github.com/icebox-backup/icebox/internal/icloud"
)

var foldersCmd = &cobra.Command{
	Use:   "folders <identity>",
	Short: "List the account's top-level iCloud Drive folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		sessions := icloud.NewSessionStore(cfg.SessionDir)
		api, err := sessions.Drive(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		engine := backup.NewDriveEngine(api, backup.NewChangeCache(cfg.StateDir), backup.NewProgressTracker(), false)
		names, err := engine.ListTopFolders(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}
