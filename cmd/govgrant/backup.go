package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dukerupert/govgrant/internal/backup"
	"github.com/dukerupert/govgrant/internal/database"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database, encrypting and uploading it when configured",
	Long: `Writes a consistent copy of the database into backup.dir. When
GOVGRANT_BACKUP_PASSPHRASE is set the snapshot is encrypted, and when S3
credentials are configured it is uploaded to the bucket.`,
	RunE: runBackup,
}

var (
	restoreFile string
	restoreKey  string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the database with a snapshot",
	Long: `Restores from a local snapshot (--file) or downloads one from the
configured bucket (--key). Stop the server first.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "local snapshot to restore")
	restoreCmd.Flags().StringVar(&restoreKey, "key", "", "object key to download and restore")
	restoreCmd.MarkFlagsOneRequired("file", "key")
	restoreCmd.MarkFlagsMutuallyExclusive("file", "key")
	rootCmd.AddCommand(backupCmd, restoreCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.Backup.Dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	m := backup.NewManager(db, cfg.Backup.S3, logger.With("component", "backup"))
	res, err := m.Run(cmd.Context(), cfg.Backup.Dir, cfg.Backup.Passphrase)
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	src := restoreFile
	if restoreKey != "" {
		src = filepath.Join(os.TempDir(), filepath.Base(restoreKey))
		defer os.Remove(src)
		m := backup.NewManager(nil, cfg.Backup.S3, logger)
		if err := m.Fetch(cmd.Context(), restoreKey, src); err != nil {
			return err
		}
	}

	if err := backup.Restore(src, cfg.DBPath, cfg.Backup.Passphrase); err != nil {
		return err
	}
	logger.Info("database restored", "from", src, "db", cfg.DBPath)
	return nil
}
