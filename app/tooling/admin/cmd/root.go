// Package cmd contains the admin commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ardanlabs/powchain/business/sys/metrics"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/clickhouse"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/powchain/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	nodeID      string
	storageKind string
	dbPath      string
	dsn         string
)

var log *zap.SugaredLogger

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeID, "node", "n", "node0", "Node whose chain is administered.")
	rootCmd.PersistentFlags().StringVarP(&storageKind, "storage", "s", "disk", "Storage kind: disk or clickhouse.")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "p", "zblock/chain", "Root folder of disk storage.")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "clickhouse://default:@localhost:9000/default", "ClickHouse DSN.")
}

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Administer a node's chain",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command named on the command line.
func Execute(build string) {
	var err error
	log, err = logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	rootCmd.Version = build

	if err := rootCmd.Execute(); err != nil {
		log.Errorw("admin", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

// openStorage constructs the configured storage.
func openStorage() (database.Storage, error) {
	switch storageKind {
	case "disk":
		return disk.New(dbPath)

	case "clickhouse":
		return clickhouse.New(dsn, metrics.Storage{})
	}

	return nil, fmt.Errorf("unknown storage kind %q", storageKind)
}

// openDatabase opens the chain of the configured node.
func openDatabase(ctx context.Context) (*database.Database, error) {
	store, err := openStorage()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	db, err := database.New(ctx, database.NodeID(nodeID), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open chain %s: %w", nodeID, err)
	}

	return db, nil
}
