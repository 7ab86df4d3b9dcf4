package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icebox-backup/icebox/internal/backup"
	"github.com/icebox-backup/icebox/internal/icloud"
)

var backupCmd = &cobra.Command{
	Use:   "backup [identity...]",
	Short: "Run a backup for the configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		accounts := cfg.Accounts
		if len(args) > 0 {
			accounts = accounts[:0:0]
			for _, identity := range args {
				account, ok := cfg.Account(identity)
				if !ok {
					return fmt.Errorf("no account %q in config", identity)
				}
				accounts = append(accounts, *account)
			}
		}

		sessions := icloud.NewSessionStore(cfg.SessionDir)
		orch := backup.NewOrchestrator(sessions, backup.Paths{
			BackupRoot:  cfg.BackupRoot,
			ArchiveRoot: cfg.ArchiveRoot,
			StateDir:    cfg.StateDir,
		})

		failed := false
		for _, account := range accounts {
			result := orch.RunBackup(cmd.Context(), account.Identity, account.RunOptions(dryRun))
			switch {
			case result.Cancelled:
				fmt.Printf("%s %s: %s\n", cyan("~"), account.Identity, result.Message)
			case result.Success:
				fmt.Printf("%s %s: %s\n", green("✓"), account.Identity, result.Message)
			default:
				failed = true
				fmt.Printf("%s %s: %s\n", red("✗"), account.Identity, result.Message)
			}
		}
		if failed {
			return fmt.Errorf("backup finished with errors")
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().Bool("dry-run", false, "report what would change without writing")
}
