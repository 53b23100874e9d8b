/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aqylal/apiserver/config"
	"github.com/aqylal/apiserver/internal/snapshots"
	"github.com/spf13/cobra"
)

// snapshotCmd groups operator access to the pre-migration archive.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect pre-migration profile snapshots",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print an archived profile snapshot",
	Long: `Print an archived profile snapshot. Usage:

	apiserver snapshot show role-migrations/users-42-1756000000.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		archive, err := newSnapshotArchive(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		profile, err := archive.LoadProfile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load snapshot %q: %w", args[0], err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(profile)
	},
}

func newSnapshotArchive(ctx context.Context, cfg config.Config) (*snapshots.Archive, error) {
	var backend snapshots.Backend
	switch cfg.SnapshotBackend {
	case "minio":
		minioBackend, err := snapshots.NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = minioBackend
	case "gcs":
		gcsBackend, err := snapshots.NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = gcsBackend
	default:
		return nil, fmt.Errorf("no snapshot backend configured (SNAPSHOT_BACKEND=%q)", cfg.SnapshotBackend)
	}
	return snapshots.NewArchive(backend), nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
}
