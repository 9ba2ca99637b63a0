package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <hash>",
	Short: "Remove a block from the chain",
	Long:  "Remove a block from the chain. The chain is not repaired, run validate afterwards.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		hash, err := database.ParseHash(args[0])
		if err != nil {
			return err
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		return deleteRun(ctx, cmd.OutOrStdout(), db, hash)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func deleteRun(ctx context.Context, w io.Writer, db *database.Database, hash database.Hash) error {
	if err := db.Delete(ctx, hash); err != nil {
		return fmt.Errorf("delete %s: %w", hash, err)
	}

	fmt.Fprintf(w, "deleted %s from chain %s\n", hash, db.NodeID())

	return nil
}
