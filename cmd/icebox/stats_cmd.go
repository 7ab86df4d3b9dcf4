package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/icebox-backup/icebox/internal/backup"
	"github.com/icebox-backup/icebox/internal/icloud"
)

var statsCmd = &cobra.Command{
	Use:   "stats [identity...]",
	Short: "Show local storage usage per account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		identities := args
		if len(identities) == 0 {
			for _, account := range cfg.Accounts {
				identities = append(identities, account.Identity)
			}
		}

		orch := backup.NewOrchestrator(icloud.NewSessionStore(cfg.SessionDir), backup.Paths{
			BackupRoot:  cfg.BackupRoot,
			ArchiveRoot: cfg.ArchiveRoot,
			StateDir:    cfg.StateDir,
		})

		for _, identity := range identities {
			dest := backup.DestinationForIdentity(identity)
			if account, ok := cfg.Account(identity); ok && account.Destination != "" {
				dest = account.Destination
			}

			stats, err := orch.GetStorageStats(dest)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", cyan(identity))
			fmt.Printf("  drive:  %6d files  %s\n", stats.Drive.Count, humanize.Bytes(uint64(stats.Drive.SizeBytes)))
			fmt.Printf("  photos: %6d files  %s\n", stats.Photos.Count, humanize.Bytes(uint64(stats.Photos.SizeBytes)))
		}
		return nil
	},
}
