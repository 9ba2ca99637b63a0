package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var listFrom uint64

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the blocks of the chain in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		return listRun(ctx, cmd.OutOrStdout(), db, listFrom)
	},
}

func init() {
	listCmd.Flags().Uint64VarP(&listFrom, "from", "f", 0, "First block number to print.")
	rootCmd.AddCommand(listCmd)
}

func listRun(ctx context.Context, w io.Writer, db *database.Database, from uint64) error {
	iter := db.ForEach(ctx)
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return fmt.Errorf("block[%d]: %w", block.Number, err)
		}

		if block.Number < from {
			continue
		}

		fmt.Fprintf(w, "%6d  %s  prev %s  diff %3d  nonce %d  payload %q\n",
			block.Number, block.Hash, block.PrevHash, block.Difficulty, block.Nonce, block.Payload)
	}

	return nil
}
