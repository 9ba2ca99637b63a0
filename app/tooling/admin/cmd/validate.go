package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every block of the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		return validateRun(ctx, cmd.OutOrStdout(), db)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateRun(ctx context.Context, w io.Writer, db *database.Database) error {
	number, err := db.Validate(ctx)
	if err != nil {
		return fmt.Errorf("chain %s invalid at block[%d]: %w", db.NodeID(), number, err)
	}

	count, err := db.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "chain %s valid: %d blocks\n", db.NodeID(), count)

	return nil
}
