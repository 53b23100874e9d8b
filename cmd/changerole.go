/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/aqylal/apiserver/config"
	"github.com/aqylal/apiserver/internal/db"
	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
	"github.com/spf13/cobra"
)

// changeroleCmd is the operator path for role migrations. Unlike the HTTP
// path it runs with per-step verification enabled: after every dependent
// update the target row is re-read inside the transaction.
var changeroleCmd = &cobra.Command{
	Use:   "changerole <user-id> <role-name|role-id>",
	Short: "Move an account to another role table",
	Long: `Move an account to another role table. Usage:

	apiserver changerole 42 teacher
	apiserver changerole 42 3

Roles: 1 (admin), 2 (moderator), 3 (teacher), 4 (student).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.Atoi(args[0])
		if err != nil || userID < 1 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		roleID, err := types.ParseRole(args[1])
		if err != nil {
			return err
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer func() {
			_ = dbConn.Close()
		}()

		migrationStore := store.NewMigrationStore(dbConn)
		result, err := migrationStore.MigrateRole(cmd.Context(), userID, roleID, store.MigrateOptions{Verify: true})
		if err != nil {
			return fmt.Errorf("migrate account %d: %w", userID, err)
		}

		fmt.Printf("account %d (%s) moved to %s as id %d, role %s\n",
			result.OldUserID, result.SourceTable, result.TargetTable,
			result.NewUserID, types.RoleName(result.NewRoleID))
		if result.StaleTargetRemoved {
			fmt.Printf("note: removed a stale row id=%d from %s left by an earlier run\n",
				result.OldUserID, result.TargetTable)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changeroleCmd)
}
